package diff

import (
	"reflect"
	"time"

	odiff "github.com/r3labs/diff/v3"

	"tripsync/db/db"
)

func GetCustomDiffer() *odiff.Differ {
	ret, err := odiff.NewDiffer(odiff.CustomValueDiffers(&TimeComparer{}))
	if err != nil {
		panic(err)
	}
	return ret
}

// TimeComparer treats time.Time as a leaf compared by instant, so a
// timestamp re-read with another location is not reported as changed.
type TimeComparer struct{}

var (
	timeType = reflect.TypeOf(time.Time{})
)

// Match check is field match this custom type
func (c TimeComparer) Match(a, b reflect.Value) bool {
	aok := a.Kind() == timeType.Kind() && a.Type() == timeType
	bok := b.Kind() == timeType.Kind() && b.Type() == timeType
	return (aok && bok) || (a.Kind() == reflect.Invalid && bok) || (b.Kind() == reflect.Invalid && aok)
}

// Diff check is diff or not
func (c TimeComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	// 取得實際數值 (處理可能為指標的情況)
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	// 如果其中一個是無效值 (nil)，則視為不同
	if !valA.IsValid() || !valB.IsValid() {
		if valA.IsValid() != valB.IsValid() {
			var from, to interface{}
			if valA.IsValid() {
				from = valA.Interface()
			}
			if valB.IsValid() {
				to = valB.Interface()
			}
			cl.Add(odiff.UPDATE, path, from, to)
		}
		return nil
	}

	t1 := valA.Interface().(time.Time)
	t2 := valB.Interface().(time.Time)

	if !t1.Equal(t2) {
		cl.Add(odiff.UPDATE, path, t1, t2)
	}
	return nil
}

// InsertParentDiffer do something with parent，
// time is leaf, so do not thing
func (c TimeComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
	// do not thing
}

// Summary lists document ids by what happened to them between two snapshots.
type Summary struct {
	Created []string
	Updated []string
	Deleted []string
}

// Empty reports whether the snapshots hold the same documents.
func (s Summary) Empty() bool {
	return len(s.Created) == 0 && len(s.Updated) == 0 && len(s.Deleted) == 0
}

func byID(docs []db.Document) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(docs))
	for _, d := range docs {
		out[d.ID] = map[string]interface{}(d.Fields)
	}
	return out
}

// Snapshots diffs two snapshots of a collection keyed by document id.
// The changelog is observational; it is never applied back to a mirror.
func Snapshots(prev, next []db.Document) (odiff.Changelog, Summary, error) {
	a, b := byID(prev), byID(next)
	cl, err := GetCustomDiffer().Diff(a, b)
	if err != nil {
		return nil, Summary{}, err
	}

	var sum Summary
	touched := make(map[string]bool)
	for _, c := range cl {
		if len(c.Path) > 0 {
			touched[c.Path[0]] = true
		}
	}
	// ids keep snapshot order
	for _, d := range next {
		if _, ok := a[d.ID]; !ok {
			sum.Created = append(sum.Created, d.ID)
		} else if touched[d.ID] {
			sum.Updated = append(sum.Updated, d.ID)
		}
	}
	for _, d := range prev {
		if _, ok := b[d.ID]; !ok {
			sum.Deleted = append(sum.Deleted, d.ID)
		}
	}
	return cl, sum, nil
}
