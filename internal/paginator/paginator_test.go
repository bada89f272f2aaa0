package paginator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/pagebot/internal/collector"
)

const (
	testMessageID = "msg-1"
	ownerID       = "owner"
	testTimeout   = 2 * time.Minute
)

// call is one mutating request made against fakeAPI.
type call struct {
	interactionID string
	resp          *discordgo.InteractionResponse // set for InteractionRespond
	edit          *discordgo.WebhookEdit         // set for InteractionResponseEdit
}

type fakeAPI struct {
	mu         sync.Mutex
	failFor    map[string]error         // InteractionRespond errors by interaction ID
	gates      map[string]chan struct{} // InteractionRespond blocks until closed
	editErr    error
	fetchErr   error
	fetchCalls int
	calls      chan call
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failFor: make(map[string]error),
		gates:   make(map[string]chan struct{}),
		calls:   make(chan call, 64),
	}
}

// hold makes the response to interactionID block until the returned channel
// is closed. The call is still reported on calls before blocking.
func (f *fakeAPI) hold(interactionID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[interactionID] = g
	return g
}

func (f *fakeAPI) failRespond(interactionID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[interactionID] = err
}

func (f *fakeAPI) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.mu.Lock()
	err := f.failFor[i.ID]
	gate := f.gates[i.ID]
	f.mu.Unlock()
	f.calls <- call{interactionID: i.ID, resp: resp}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAPI) InteractionResponse(i *discordgo.Interaction) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &discordgo.Message{ID: testMessageID}, nil
}

func (f *fakeAPI) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	f.mu.Lock()
	err := f.editErr
	f.mu.Unlock()
	f.calls <- call{interactionID: i.ID, edit: edit}
	return &discordgo.Message{ID: testMessageID}, err
}

func (f *fakeAPI) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an API call")
		return call{}
	}
}

func (f *fakeAPI) quiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected API call: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	ctrl   *Controller
	api    *fakeAPI
	router *collector.Router
	clock  clockwork.FakeClock
	source *discordgo.Interaction
	seq    atomic.Int64
}

func newHarness() *harness {
	api := newFakeAPI()
	router := collector.NewRouter()
	ctrl := New(api, router)
	clock := clockwork.NewFakeClock()
	ctrl.SetClock(clock)
	ctrl.SetTimeout(testTimeout)
	return &harness{
		ctrl:   ctrl,
		api:    api,
		router: router,
		clock:  clock,
		source: &discordgo.Interaction{
			ID:     "source",
			Type:   discordgo.InteractionApplicationCommand,
			Member: &discordgo.Member{User: &discordgo.User{ID: ownerID}},
		},
	}
}

func textPages(contents ...string) []Page {
	pages := make([]Page, 0, len(contents))
	for _, c := range contents {
		pages = append(pages, Page{Content: c})
	}
	return pages
}

// click dispatches a button press and returns the click's interaction ID.
func (h *harness) click(t *testing.T, userID string, customID string) string {
	t.Helper()
	id := fmt.Sprintf("click-%d", h.seq.Add(1))
	ok := h.router.Dispatch(&discordgo.Interaction{
		ID:      id,
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: testMessageID},
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	})
	require.True(t, ok, "click %s was not accepted", customID)
	return id
}

func buttons(t *testing.T, rows []discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	require.Len(t, rows, 1)
	row, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	out := make([]discordgo.Button, 0, len(row.Components))
	for _, c := range row.Components {
		out = append(out, c.(discordgo.Button))
	}
	return out
}

func assertAllDisabled(t *testing.T, rows []discordgo.MessageComponent) {
	t.Helper()
	for _, b := range buttons(t, rows) {
		assert.True(t, b.Disabled, "button %s should be disabled", b.CustomID)
	}
}

// navigate clicks as the owner and returns the page content shown afterwards.
func (h *harness) navigate(t *testing.T, a Action) string {
	t.Helper()
	id := h.click(t, ownerID, a.CustomID())
	c := h.api.next(t)
	require.Equal(t, id, c.interactionID)
	require.NotNil(t, c.resp)
	require.Equal(t, discordgo.InteractionResponseUpdateMessage, c.resp.Type)
	return c.resp.Data.Content
}

func (h *harness) present(t *testing.T, pages []Page, attachments [][]Attachment, opts Options) call {
	t.Helper()
	h.ctrl.Present(context.Background(), pages, attachments, h.source, opts)
	return h.api.next(t)
}

func (h *harness) expire(t *testing.T) call {
	t.Helper()
	h.clock.Advance(testTimeout)
	c := h.api.next(t)
	h.ctrl.Wait()
	return c
}

func TestPresentEmptySendsNoResults(t *testing.T) {
	h := newHarness()
	first := h.present(t, nil, nil, Options{})

	require.NotNil(t, first.resp)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, first.resp.Type)
	assert.Equal(t, noResultsText, first.resp.Data.Content)
	assert.Empty(t, first.resp.Data.Components)
	assert.Equal(t, 0, h.router.Len())
	assert.Equal(t, 0, h.api.fetchCalls)
	h.api.quiet(t)
}

func TestPresentEmptyDeferredEditsReply(t *testing.T) {
	h := newHarness()
	first := h.present(t, []Page{}, nil, Options{Deferred: true})

	require.NotNil(t, first.edit)
	assert.Equal(t, noResultsText, *first.edit.Content)
	assert.Nil(t, first.edit.Components)
	assert.Equal(t, 0, h.router.Len())
	h.api.quiet(t)
}

func TestPresentSinglePageHasNoControls(t *testing.T) {
	h := newHarness()
	first := h.present(t, textPages("only"), nil, Options{})

	assert.Equal(t, "only", first.resp.Data.Content)
	assert.Empty(t, first.resp.Data.Components)
	assert.Equal(t, 0, h.router.Len())
	assert.Equal(t, 0, h.api.fetchCalls)
	h.api.quiet(t)
}

func TestPresentFirstPageWithControls(t *testing.T) {
	h := newHarness()
	first := h.present(t, textPages("A", "B", "C"), nil, Options{})

	assert.Equal(t, "A", first.resp.Data.Content)
	bs := buttons(t, first.resp.Data.Components)
	require.Len(t, bs, 4)
	assert.True(t, bs[0].Disabled)
	assert.True(t, bs[1].Disabled)
	assert.False(t, bs[2].Disabled)
	assert.False(t, bs[3].Disabled)
	assert.Equal(t, 1, h.router.Len())
	assert.Equal(t, 1, h.api.fetchCalls)

	h.expire(t)
}

func TestPresentDeferredDeliversByEdit(t *testing.T) {
	h := newHarness()
	pages := []Page{
		{Embeds: []*discordgo.MessageEmbed{{Title: "one"}}},
		{Embeds: []*discordgo.MessageEmbed{{Title: "two"}}},
	}
	first := h.present(t, pages, nil, Options{Deferred: true})

	require.NotNil(t, first.edit)
	require.NotNil(t, first.edit.Embeds)
	assert.Equal(t, "one", (*first.edit.Embeds)[0].Title)
	require.NotNil(t, first.edit.Components)
	assert.Len(t, buttons(t, *first.edit.Components), 4)

	// the edit already names the message
	assert.Equal(t, 0, h.api.fetchCalls)
	assert.Equal(t, 1, h.router.Len())
	h.click(t, ownerID, Next.CustomID())
	assert.Equal(t, "two", h.api.next(t).resp.Data.Embeds[0].Title)

	h.expire(t)
}

func TestNextClampsAtLastPage(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	var seen []string
	for i := 0; i < 4; i++ {
		seen = append(seen, h.navigate(t, Next))
	}
	assert.Equal(t, []string{"B", "C", "C", "C"}, seen)

	h.expire(t)
}

func TestLastPreviousFirst(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	assert.Equal(t, "C", h.navigate(t, Last))
	assert.Equal(t, "B", h.navigate(t, Previous))
	assert.Equal(t, "A", h.navigate(t, First))

	h.expire(t)
}

func TestButtonStatesFollowIndex(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	h.click(t, ownerID, Next.CustomID())
	mid := buttons(t, h.api.next(t).resp.Data.Components)
	for _, b := range mid {
		assert.False(t, b.Disabled, "%s on middle page", b.CustomID)
	}

	h.click(t, ownerID, Last.CustomID())
	end := buttons(t, h.api.next(t).resp.Data.Components)
	assert.False(t, end[0].Disabled)
	assert.False(t, end[1].Disabled)
	assert.True(t, end[2].Disabled)
	assert.True(t, end[3].Disabled)

	h.expire(t)
}

func TestNonOwnerGetsEphemeralNotice(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	for _, a := range actions {
		id := h.click(t, "intruder", a.CustomID())
		c := h.api.next(t)
		require.Equal(t, id, c.interactionID)
		assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, c.resp.Type)
		assert.Equal(t, discordgo.MessageFlagsEphemeral, c.resp.Data.Flags)
		assert.Equal(t, notOwnerText, c.resp.Data.Content)
	}

	// still on page 0
	assert.Equal(t, "B", h.navigate(t, Next))

	h.expire(t)
}

func TestUnknownButtonIsAcknowledged(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B"), nil, Options{})

	h.click(t, ownerID, "pager:sideways")
	c := h.api.next(t)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, c.resp.Type)
	assert.Equal(t, "B", h.navigate(t, Next))

	h.expire(t)
}

func TestTimeoutDisablesControlsOnce(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})
	assert.Equal(t, "B", h.navigate(t, Next))

	h.clock.Advance(testTimeout + time.Millisecond)
	c := h.api.next(t)
	h.ctrl.Wait()

	require.NotNil(t, c.edit)
	assert.Equal(t, "source", c.interactionID)
	assert.Nil(t, c.edit.Content)
	assertAllDisabled(t, *c.edit.Components)
	assert.Equal(t, 0, h.router.Len())

	late := h.router.Dispatch(&discordgo.Interaction{
		ID:      "late",
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: testMessageID},
		Member:  &discordgo.Member{User: &discordgo.User{ID: ownerID}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: Next.CustomID()},
	})
	assert.False(t, late)
	h.api.quiet(t)
}

func TestOptionsTimeoutOverridesDefault(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B"), nil, Options{Timeout: 10 * time.Second})

	h.clock.Advance(10 * time.Second)
	c := h.api.next(t)
	h.ctrl.Wait()
	require.NotNil(t, c.edit)
	assertAllDisabled(t, *c.edit.Components)
}

func TestTimeoutIsCappedAtTokenLifetime(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		opts    Options
	}{
		{"controller timeout", 48 * time.Hour, Options{}},
		{"per call timeout", 0, Options{Timeout: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.ctrl.SetTimeout(tt.timeout)
			h.present(t, textPages("A", "B"), nil, tt.opts)

			h.clock.Advance(MaxTimeout - time.Second)
			h.api.quiet(t)

			h.clock.Advance(time.Second)
			c := h.api.next(t)
			h.ctrl.Wait()
			require.NotNil(t, c.edit)
			assertAllDisabled(t, *c.edit.Components)
		})
	}
}

func TestExpiryAcknowledgesBufferedClicks(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	release := h.api.hold("click-1")
	h.click(t, ownerID, Next.CustomID())
	busy := h.api.next(t)
	require.Equal(t, "click-1", busy.interactionID)

	// the session is still answering click-1, so these wait in the buffer
	queued := []string{
		h.click(t, ownerID, Next.CustomID()),
		h.click(t, "intruder", Last.CustomID()),
	}
	h.clock.Advance(testTimeout)
	close(release)

	disable := h.api.next(t)
	require.NotNil(t, disable.edit)
	assertAllDisabled(t, *disable.edit.Components)
	for _, id := range queued {
		c := h.api.next(t)
		assert.Equal(t, id, c.interactionID)
		require.NotNil(t, c.resp)
		assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, c.resp.Type)
	}
	h.ctrl.Wait()
	assert.Equal(t, 0, h.router.Len())
	h.api.quiet(t)
}

func TestEditFailureExpiresSession(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B", "C"), nil, Options{})

	h.api.failRespond("click-1", errors.New("unknown message"))
	h.api.mu.Lock()
	h.api.editErr = errors.New("unknown message")
	h.api.mu.Unlock()

	h.click(t, ownerID, Next.CustomID())
	failed := h.api.next(t)
	require.NotNil(t, failed.resp)

	disable := h.api.next(t)
	h.ctrl.Wait()
	require.NotNil(t, disable.edit)
	assertAllDisabled(t, *disable.edit.Components)
	assert.Equal(t, 0, h.router.Len())
	h.api.quiet(t)
}

func TestContextCancelExpiresSession(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.ctrl.Present(ctx, textPages("A", "B"), nil, h.source, Options{})
	h.api.next(t)

	cancel()
	c := h.api.next(t)
	h.ctrl.Wait()
	require.NotNil(t, c.edit)
	assertAllDisabled(t, *c.edit.Components)
	assert.Equal(t, 0, h.router.Len())
}

func TestDeliveryFailureCreatesNoSession(t *testing.T) {
	h := newHarness()
	h.api.failRespond("source", errors.New("unknown interaction"))
	h.present(t, textPages("A", "B"), nil, Options{})

	assert.Equal(t, 0, h.router.Len())
	assert.Equal(t, 0, h.api.fetchCalls)
	h.api.quiet(t)
}

func TestFetchFailureCreatesNoSession(t *testing.T) {
	h := newHarness()
	h.api.fetchErr = errors.New("missing access")
	h.present(t, textPages("A", "B"), nil, Options{})

	assert.Equal(t, 0, h.router.Len())
	h.api.quiet(t)
}

func TestAttachmentsFollowPages(t *testing.T) {
	h := newHarness()
	attachments := [][]Attachment{
		{{Name: "p0.csv", ContentType: "text/csv", Data: []byte("zero")}},
		{{Name: "p1.csv", ContentType: "text/csv", Data: []byte("one")}},
		nil,
	}
	first := h.present(t, textPages("A", "B", "C"), attachments, Options{})
	require.Len(t, first.resp.Data.Files, 1)
	assert.Equal(t, "p0.csv", first.resp.Data.Files[0].Name)

	h.click(t, ownerID, Next.CustomID())
	second := h.api.next(t).resp.Data
	require.Len(t, second.Files, 1)
	assert.Equal(t, "p1.csv", second.Files[0].Name)
	body, err := io.ReadAll(second.Files[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "one", string(body))
	require.NotNil(t, second.Attachments)
	assert.Empty(t, *second.Attachments)

	h.click(t, ownerID, Next.CustomID())
	assert.Empty(t, h.api.next(t).resp.Data.Files)

	// revisiting a page re-reads its data
	h.click(t, ownerID, First.CustomID())
	again := h.api.next(t).resp.Data.Files
	require.Len(t, again, 1)
	body, err = io.ReadAll(again[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "zero", string(body))

	h.expire(t)
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newHarness()
	h.present(t, textPages("A", "B"), nil, Options{})

	other := collector.NewRouter()
	ctrl2 := New(h.api, other)
	ctrl2.SetClock(h.clock)
	ctrl2.Present(context.Background(), textPages("X", "Y"), nil, h.source, Options{})
	h.api.next(t)

	assert.Equal(t, "B", h.navigate(t, Next))
	assert.Equal(t, 1, other.Len())

	h.clock.Advance(DefaultTimeout)
	h.api.next(t)
	h.api.next(t)
	h.ctrl.Wait()
	ctrl2.Wait()
}
