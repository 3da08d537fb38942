package web

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/vikstrous/dataloadgen"

	"tripsync/planner"
)

const avatarLoaderKey = "avatar_loader"

// avatarLoader batches member-name lookups within one request, so a list
// with many repeated names reads the roster snapshot once.
type avatarLoader struct {
	byName *dataloadgen.Loader[string, string]
}

func newAvatarLoader(p *planner.Planner) *avatarLoader {
	return &avatarLoader{byName: dataloadgen.NewMappedLoader(func(_ context.Context, names []string) (map[string]string, error) {
		r := p.Roster()
		out := make(map[string]string, len(names))
		for _, name := range names {
			// unknown names map to "" so the loader never reports a miss
			out[name] = r.AvatarFor(name, "")
		}
		return out, nil
	})}
}

// avatars resolves every name to its live avatar, "" when unknown.
func (l *avatarLoader) avatars(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	urls, err := l.byName.LoadAll(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load avatars: %w", err)
	}
	for i, name := range names {
		out[name] = urls[i]
	}
	return out, nil
}

func avatarLoaderFrom(c *gin.Context) (*avatarLoader, error) {
	l, ok := c.Value(avatarLoaderKey).(*avatarLoader)
	if !ok {
		return nil, fmt.Errorf("avatar loader is not available")
	}
	return l, nil
}
