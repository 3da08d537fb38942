package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripsync/completion"
	"tripsync/model"
	"tripsync/planner"
	"tripsync/prompt"
	"tripsync/upload"
	"tripsync/view"
)

type handler struct {
	p *planner.Planner
}

// confirmer maps ?confirm=true to an approving prompt. Without it every
// destructive call is declined.
func confirmer(c *gin.Context) prompt.Confirmer {
	if c.Query("confirm") == "true" {
		return prompt.Always
	}
	return prompt.Never
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}
	return n, nil
}

func packingID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("packing id: %w", err)
	}
	return id, nil
}

func readFile(fh *multipart.FileHeader) (upload.File, error) {
	f, err := fh.Open()
	if err != nil {
		return upload.File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload.File{}, err
	}
	return upload.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

func (h *handler) status(c *gin.Context) {
	st := h.p.Status()
	ready := true
	for _, ok := range st {
		ready = ready && ok
	}
	c.JSON(http.StatusOK, gin.H{"ready": ready, "collections": st})
}

// --- itinerary & bookings ---

type activityJSON struct {
	model.Activity
	Lines [][]view.Segment `json:"lines"`
}

func (h *handler) itinerary(c *gin.Context) {
	day, err := intQuery(c, "day")
	if err != nil {
		badRequest(c, err)
		return
	}
	group, err := intQuery(c, "group")
	if err != nil {
		badRequest(c, err)
		return
	}
	sel := view.Selection{}.SelectDay(day).SelectGroup(group)

	days := h.p.Itinerary.Current()
	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
	}
	resp := gin.H{"dates": dates, "selection": sel}
	if sel.Day >= 0 && sel.Day < len(days) {
		resp["weather"] = view.WeatherOf(days[sel.Day])
		resp["tabs"] = view.GroupTabs(days[sel.Day])
	}
	acts := []activityJSON{}
	for _, a := range view.Activities(days, sel) {
		acts = append(acts, activityJSON{Activity: a, Lines: view.DecoratedNote(a.Note, view.HighlightKeywords)})
	}
	resp["activities"] = acts
	c.JSON(http.StatusOK, resp)
}

type flightJSON struct {
	model.Booking
	view.Endpoints
}

func (h *handler) bookings(c *gin.Context) {
	all := h.p.Bookings()
	date := c.DefaultQuery("date", view.DefaultFlightDate(all))
	flights := []flightJSON{}
	for _, b := range view.FlightsOn(all, date) {
		flights = append(flights, flightJSON{Booking: b, Endpoints: view.FlightEndpoints(b)})
	}
	c.JSON(http.StatusOK, gin.H{
		"flightDates": view.FlightDates(all),
		"date":        date,
		"flights":     flights,
		"stays":       view.Stays(all),
		"transports":  view.Transports(all),
	})
}

// --- todos ---

type todoJSON struct {
	ID string `json:"id"`
	model.TodoItem
	Progress completion.TodoProgress `json:"progress"`
	Avatars  map[string]string       `json:"avatars"`
}

func (h *handler) listTodos(c *gin.Context) {
	loader, err := avatarLoaderFrom(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	rows := view.Todos(h.p.Todos.Current(), h.p.Roster(), c.Query("assignee"))
	var names []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, n := range row.Progress.Target {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	avatars, err := loader.avatars(c.Request.Context(), names)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]todoJSON, 0, len(rows))
	for _, row := range rows {
		mine := make(map[string]string, len(row.Progress.Target))
		for _, n := range row.Progress.Target {
			mine[n] = avatars[n]
		}
		out = append(out, todoJSON{ID: row.Item.ID, TodoItem: row.Item, Progress: row.Progress, Avatars: mine})
	}
	c.JSON(http.StatusOK, out)
}

type todoRequest struct {
	Text      string   `json:"text"`
	Assignees []string `json:"assignees"`
}

func (h *handler) addTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.p.AddTodo(c.Request.Context(), req.Text, req.Assignees)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handler) editTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.EditTodo(c.Request.Context(), c.Param("id"), req.Text); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberRequest struct {
	Member string `json:"member"`
}

func (h *handler) toggleTodo(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.ToggleTodo(c.Request.Context(), c.Param("id"), req.Member); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) assignTodo(assign bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.p.AssignTodo(c.Request.Context(), c.Param("id"), c.Param("member"), assign, confirmer(c)); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *handler) deleteTodo(c *gin.Context) {
	if err := h.p.DeleteTodo(c.Request.Context(), c.Param("id"), confirmer(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- shopping ---

type shoppingJSON struct {
	ID string `json:"id"`
	model.ShoppingItem
}

func (h *handler) listShopping(c *gin.Context) {
	all := h.p.Shopping.Current()
	items := view.FilterByCategory(view.FilterByTag(all, c.Query("tag")), c.Query("category"))
	items = view.SortIncompleteFirst(items, func(it model.ShoppingItem) bool { return it.Completed })
	out := make([]shoppingJSON, 0, len(items))
	for _, it := range items {
		out = append(out, shoppingJSON{ID: it.ID, ShoppingItem: it})
	}
	c.JSON(http.StatusOK, gin.H{
		"tags":       view.ShoppingTags(all),
		"categories": view.ShoppingCategories(all),
		"items":      out,
	})
}

func (h *handler) addShopping(c *gin.Context) {
	var req planner.ShoppingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.p.AddShopping(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handler) editShopping(c *gin.Context) {
	var req planner.ShoppingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.EditShopping(c.Request.Context(), c.Param("id"), req.Title, req.SubItems); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) setBuyer(c *gin.Context) {
	var req struct {
		Buyer string `json:"buyer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.SetBuyer(c.Request.Context(), c.Param("id"), req.Buyer); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) deleteShopping(c *gin.Context) {
	if err := h.p.DeleteShopping(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := readFile(fh)
	if err != nil {
		badRequest(c, err)
		return
	}
	url, err := h.p.UploadImage(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// --- journal ---

type journalJSON struct {
	ID string `json:"id"`
	model.JournalPost
	Avatar string `json:"avatar"`
}

func (h *handler) listJournal(c *gin.Context) {
	rows := view.Journal(h.p.Journal.Current(), h.p.Roster())
	out := make([]journalJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, journalJSON{ID: row.Post.ID, JournalPost: row.Post, Avatar: row.Avatar})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) addPost(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, err)
		return
	}
	var files []upload.File
	for _, fh := range form.File["images"] {
		f, err := readFile(fh)
		if err != nil {
			badRequest(c, err)
			return
		}
		files = append(files, f)
	}
	res, err := h.p.AddPost(c.Request.Context(), c.PostForm("author"), c.PostForm("content"), files)
	if err != nil {
		abortWithError(c, err)
		return
	}
	failed := make([]string, 0, len(res.Failed))
	for _, e := range res.Failed {
		var ue *upload.UploadError
		if errors.As(e, &ue) {
			failed = append(failed, ue.Name)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": res.ID, "images": res.Images, "failed": failed})
}

// --- members ---

type memberJSON struct {
	DocID string `json:"docId"`
	model.Member
}

func (h *handler) listMembers(c *gin.Context) {
	members := h.p.Roster().Members()
	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, memberJSON{DocID: m.ID, Member: m})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) addMember(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.p.AddMember(c.Request.Context(), req.Name, req.Avatar)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"docId": id})
}

func (h *handler) deleteMember(c *gin.Context) {
	if err := h.p.DeleteMember(c.Request.Context(), c.Param("id"), confirmer(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- packing ---

func (h *handler) listPacking(c *gin.Context) {
	category := c.Query("category")
	rows := view.Packing(h.p.Packing().Current(), h.p.Roster(), category, c.Query("member"))
	c.JSON(http.StatusOK, rows)
}

func (h *handler) addPacking(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.p.AddPackingItem(c.Request.Context(), req.Name, req.Category)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *handler) togglePacking(c *gin.Context) {
	id, err := packingID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.TogglePacking(c.Request.Context(), id, req.Member); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) attachPackingImage(c *gin.Context) {
	id, err := packingID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req struct {
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.AttachPackingImage(c.Request.Context(), id, req.Image); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) deletePacking(c *gin.Context) {
	id, err := packingID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.p.DeletePackingItem(c.Request.Context(), id, confirmer(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
