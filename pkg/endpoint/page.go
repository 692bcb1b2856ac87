package endpoint

import (
	"bytes"
	_ "embed"
	"html/template"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/posttree"
	"github.com/abustany/monthly-board/pkg/types"
)

const EmptyBoardMessage = "まだ投稿がありません。最初の投稿をしてみましょう！"
const DeleteConfirmMessage = "この投稿を削除しますか？返信もすべて削除されます。"

//go:embed templates/board.html
var boardTemplate string

// postView is a post along with the state of the forms attached to it.
type postView struct {
	types.Post
	Replying   bool
	Editing    bool
	Confirming bool
	Month      string
	Replies    []postView
}

type pageData struct {
	Posts        []postView
	Count        int
	Months       []string
	Month        string
	Background   string
	EmptyMessage string
}

// pageState holds the month being viewed and the ids picked by the
// reply/edit/confirm query parameters.
type pageState struct {
	month                string
	reply, edit, confirm float64
}

type pageRenderer struct {
	template    *template.Template
	location    *time.Location
	backgrounds []string

	mu   sync.Mutex
	rand *rand.Rand
}

func newPageRenderer(location *time.Location, backgrounds []string, r *rand.Rand) *pageRenderer {
	p := &pageRenderer{
		location:    location,
		backgrounds: backgrounds,
		rand:        r,
	}

	p.template = template.Must(template.New("board").Funcs(template.FuncMap{
		"formatDateTime": p.formatDateTime,
		"monthLabel":     MonthLabel,
		"idStr":          FormatID,
		"imageURL":       imageURL,
		"confirmText":    func() string { return DeleteConfirmMessage },
	}).Parse(boardTemplate))

	return p
}

func (p *pageRenderer) formatDateTime(t time.Time) string {
	return t.In(p.location).Format("2006/01/02 15:04:05")
}

// MonthLabel turns a month key ("2024/01") into its display form ("2024年1月").
func MonthLabel(monthKey string) string {
	parts := strings.SplitN(monthKey, "/", 2)

	if len(parts) != 2 {
		return monthKey
	}

	month, err := strconv.Atoi(parts[1])

	if err != nil {
		return monthKey
	}

	return parts[0] + "年" + strconv.Itoa(month) + "月"
}

// imageURL only lets image data URLs through to the src attribute.
func imageURL(data *string) template.URL {
	if data == nil || !strings.HasPrefix(*data, "data:image/") {
		return ""
	}

	return template.URL(*data)
}

func (p *pageRenderer) background() string {
	if len(p.backgrounds) == 0 {
		return ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.backgrounds[p.rand.Intn(len(p.backgrounds))]
}

func makeViews(posts []types.Post, state pageState) []postView {
	views := make([]postView, len(posts))

	for i, post := range posts {
		views[i] = postView{
			Post:       post,
			Replying:   post.ID == state.reply,
			Editing:    post.ID == state.edit,
			Confirming: post.ID == state.confirm,
			Month:      state.month,
			Replies:    makeViews(post.Replies, state),
		}
	}

	return views
}

func (p *pageRenderer) render(posts []types.Post, months []string, state pageState) ([]byte, error) {
	data := pageData{
		Posts:        makeViews(posts, state),
		Count:        posttree.Count(posts),
		Months:       months,
		Month:        state.month,
		Background:   p.background(),
		EmptyMessage: EmptyBoardMessage,
	}

	buffer := bytes.Buffer{}

	if err := p.template.Execute(&buffer, &data); err != nil {
		return nil, errors.Wrap(err, "Error while rendering board page")
	}

	return buffer.Bytes(), nil
}

// queryID parses an optional post id from the query string, 0 meaning none.
func queryID(r *http.Request, name string) float64 {
	id, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)

	if err != nil {
		return 0
	}

	return id
}

func (e *HttpEndpoint) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := e.context(r)
	defer cancel()

	view := postservice.View{MonthFilter: r.URL.Query().Get("month")}
	posts, err := e.service.Posts(ctx, view)

	if err := swallowRecovered(e.logger, err); err != nil {
		WriteError(w, err)
		return
	}

	months, err := e.service.Months(ctx)

	if err != nil {
		WriteError(w, err)
		return
	}

	state := pageState{
		month:   view.MonthFilter,
		reply:   queryID(r, "reply"),
		edit:    queryID(r, "edit"),
		confirm: queryID(r, "confirm"),
	}

	page, err := e.page.render(posts, months, state)

	if err != nil {
		e.logger.Log("event", "render_error", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
