package commands_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aibo-bot/aibo/internal/aibo/commands"
	"github.com/aibo-bot/aibo/internal/aibo/history"
	"github.com/aibo-bot/aibo/internal/aibo/linkding"
	"github.com/aibo-bot/aibo/internal/aibo/toolset"
)

type fakeConversations struct {
	histories map[string]*history.History
	cleared   []string
	popped    []int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{histories: map[string]*history.History{}}
}

func (f *fakeConversations) History(sender string) (*history.History, error) {
	if h, ok := f.histories[sender]; ok {
		return h, nil
	}
	return &history.History{}, nil
}

func (f *fakeConversations) ClearHistory(sender string) error {
	f.cleared = append(f.cleared, sender)
	delete(f.histories, sender)
	return nil
}

func (f *fakeConversations) PopLast(sender string, n int) ([]history.Message, error) {
	f.popped = append(f.popped, n)
	h := f.histories[sender]
	if h == nil || h.Len() == 0 {
		return nil, nil
	}
	if n > h.Len() {
		n = h.Len()
	}
	removed := make([]history.Message, 0, n)
	for i := 0; i < n; i++ {
		removed = append(removed, h.Messages[h.Len()-1-i])
	}
	h.Messages = h.Messages[:h.Len()-n]
	return removed, nil
}

type fakeSummarizer struct {
	gotURL   string
	gotQuery string
	result   toolset.Result
}

func (f *fakeSummarizer) Summarize(ctx context.Context, pageURL, query string) toolset.Result {
	f.gotURL = pageURL
	f.gotQuery = query
	return f.result
}

type fakeBookmarks struct {
	list    []linkding.Bookmark
	cached  []bool
	randomN []int
	reset   []bool
}

func (f *fakeBookmarks) Bookmarks(ctx context.Context, cached bool) ([]linkding.Bookmark, error) {
	f.cached = append(f.cached, cached)
	return f.list, nil
}

func (f *fakeBookmarks) Random(ctx context.Context, n int, cached, reset bool) ([]linkding.Bookmark, error) {
	f.randomN = append(f.randomN, n)
	f.cached = append(f.cached, cached)
	f.reset = append(f.reset, reset)
	if n > len(f.list) {
		n = len(f.list)
	}
	return f.list[:n], nil
}

func newTestHandlers(conv *fakeConversations, sum *fakeSummarizer, bm *fakeBookmarks) *commands.Router {
	router := commands.NewRouter("!")
	var lister commands.BookmarkLister
	if bm != nil {
		lister = bm
	}
	commands.NewHandlers(conv, sum, lister).RegisterAll(router)
	return router
}

func TestHandleHistoryEmpty(t *testing.T) {
	router := newTestHandlers(newFakeConversations(), &fakeSummarizer{}, nil)

	reply, err := router.Route(context.Background(), "!history", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "*empty*" {
		t.Errorf("reply = %q, want *empty*", reply)
	}
}

func TestHandleHistoryRendersMessagesAndUsage(t *testing.T) {
	conv := newFakeConversations()
	h := &history.History{}
	h.Append(history.RoleUser, "hello")
	h.AppendWithUsage(history.RoleAssistant, "hi there", 42)
	conv.histories["@alice:test"] = h
	router := newTestHandlers(conv, &fakeSummarizer{}, nil)

	reply, err := router.Route(context.Background(), "!history", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	for _, want := range []string{"* [user] hello", "* [assistant] hi there", "42 tokens"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestHandleHistoryClear(t *testing.T) {
	conv := newFakeConversations()
	router := newTestHandlers(conv, &fakeSummarizer{}, nil)

	reply, err := router.Route(context.Background(), "!history clear", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "Chat history cleared." {
		t.Errorf("reply = %q", reply)
	}
	if len(conv.cleared) != 1 || conv.cleared[0] != "@alice:test" {
		t.Errorf("cleared = %v", conv.cleared)
	}
}

func TestHandleHistoryPop(t *testing.T) {
	conv := newFakeConversations()
	h := &history.History{}
	h.Append(history.RoleUser, "one")
	h.Append(history.RoleAssistant, "two")
	conv.histories["@alice:test"] = h
	router := newTestHandlers(conv, &fakeSummarizer{}, nil)

	reply, err := router.Route(context.Background(), "!history pop 1", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.Contains(reply, "Removed: [assistant] two") {
		t.Errorf("reply = %q", reply)
	}

	if _, err := router.Route(context.Background(), "!history pop zero", "@alice:test"); err == nil {
		t.Error("non-numeric n accepted")
	}
	if _, err := router.Route(context.Background(), "!history pop -2", "@alice:test"); err == nil {
		t.Error("negative n accepted")
	}
}

func TestHandleSummarize(t *testing.T) {
	sum := &fakeSummarizer{result: toolset.Result{Context: "A fine page.", Title: "Example"}}
	router := newTestHandlers(newFakeConversations(), sum, nil)

	reply, err := router.Route(context.Background(), "!summarize https://example.com/a", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if sum.gotURL != "https://example.com/a" {
		t.Errorf("url = %q", sum.gotURL)
	}
	if !strings.Contains(sum.gotQuery, "summary") {
		t.Errorf("default query not applied: %q", sum.gotQuery)
	}
	if !strings.Contains(reply, "**Example**") || !strings.Contains(reply, "A fine page.") {
		t.Errorf("reply = %q", reply)
	}

	router.Route(context.Background(), "!summarize https://example.com/a what license is this under", "@alice:test")
	if sum.gotQuery != "what license is this under" {
		t.Errorf("custom query = %q", sum.gotQuery)
	}

	if _, err := router.Route(context.Background(), "!summarize", "@alice:test"); err == nil {
		t.Error("missing url accepted")
	}
}

func TestHandleBookmarks(t *testing.T) {
	bm := &fakeBookmarks{list: []linkding.Bookmark{
		{ID: 1, URL: "https://a.example", Title: "A"},
		{ID: 2, URL: "https://b.example", Title: "B"},
	}}
	router := newTestHandlers(newFakeConversations(), &fakeSummarizer{}, bm)

	reply, err := router.Route(context.Background(), "!bookmarks", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.Contains(reply, "* 1: A https://a.example") {
		t.Errorf("reply = %q", reply)
	}
	if !bm.cached[0] {
		t.Error("default should read through the cache")
	}

	router.Route(context.Background(), "!bookmarks --cached=false", "@alice:test")
	if bm.cached[1] {
		t.Error("--cached=false should bust the cache")
	}
}

func TestHandleBookmarksRandom(t *testing.T) {
	bm := &fakeBookmarks{list: []linkding.Bookmark{
		{ID: 1, URL: "https://a.example", Title: "A"},
	}}
	router := newTestHandlers(newFakeConversations(), &fakeSummarizer{}, bm)

	reply, err := router.Route(context.Background(), "!bookmarks random 1 --reset", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.Contains(reply, "* 1: A https://a.example") {
		t.Errorf("reply = %q", reply)
	}
	if bm.randomN[0] != 1 || !bm.reset[0] {
		t.Errorf("randomN = %v, reset = %v", bm.randomN, bm.reset)
	}

	if _, err := router.Route(context.Background(), "!bookmarks random", "@alice:test"); err == nil {
		t.Error("missing n accepted")
	}
}

func TestBookmarksUnregisteredWithoutService(t *testing.T) {
	router := newTestHandlers(newFakeConversations(), &fakeSummarizer{}, nil)
	if _, err := router.Route(context.Background(), "!bookmarks", "@alice:test"); err == nil {
		t.Error("bookmarks should be unknown when Linkding is not configured")
	}
}
