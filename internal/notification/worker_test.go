package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/queue"
)

type stubDelivery struct {
	mu       sync.Mutex
	byRole   map[model.Role][]string
	failures int
	calls    int
	saved    []model.Notification
}

func (s *stubDelivery) UserIDsByRoles(_ context.Context, roles []model.Role) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range roles {
		out = append(out, s.byRole[r]...)
	}
	return out, nil
}

func (s *stubDelivery) CreateNotifications(_ context.Context, ns []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("connection reset")
	}
	s.saved = append(s.saved, ns...)
	return nil
}

func (s *stubDelivery) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, n := range s.saved {
		out = append(out, n.RecipientID)
	}
	sort.Strings(out)
	return out
}

func testWorker(st DeliveryStore) *Worker {
	w := NewWorker(st, func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }, logging.Discard())
	w.base = time.Millisecond
	return w
}

func TestDeliverFansOutAndDedupes(t *testing.T) {
	t.Parallel()
	st := &stubDelivery{byRole: map[model.Role][]string{
		model.RoleStudent: {"s1", "s2"},
		model.RoleFaculty: {"f1", "author"},
	}}
	err := testWorker(st).Deliver(context.Background(), Dispatch{
		RecipientIDs: []string{"s1", ""},
		Roles:        []model.Role{model.RoleStudent, model.RoleFaculty},
		ExcludeIDs:   []string{"author"},
		Title:        "Exam week",
		Type:         model.NotifyAnnouncement,
		Resource:     Ref("announcement", "a1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	got := st.recipients()
	want := []string{"f1", "s1", "s2"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recipients = %v, want %v", got, want)
		}
	}
	if n := st.saved[0]; n.ID == "" || n.Title != "Exam week" || n.RelatedResource.ID != "a1" || n.IsRead {
		t.Fatalf("notification = %+v", n)
	}
}

func TestDeliverRetries(t *testing.T) {
	t.Parallel()

	t.Run("recovers", func(t *testing.T) {
		st := &stubDelivery{failures: 2}
		if err := testWorker(st).Deliver(context.Background(), Dispatch{RecipientIDs: []string{"u1"}, Title: "t"}); err != nil {
			t.Fatal(err)
		}
		if st.calls != 3 || len(st.saved) != 1 {
			t.Fatalf("calls = %d saved = %d", st.calls, len(st.saved))
		}
	})

	t.Run("gives up", func(t *testing.T) {
		st := &stubDelivery{failures: -1}
		if err := testWorker(st).Deliver(context.Background(), Dispatch{RecipientIDs: []string{"u1"}, Title: "t"}); err == nil {
			t.Fatal("expected error after retries")
		}
		if st.calls != 3 {
			t.Fatalf("calls = %d, want 3", st.calls)
		}
	})

	t.Run("empty audience", func(t *testing.T) {
		st := &stubDelivery{}
		if err := testWorker(st).Deliver(context.Background(), Dispatch{ExcludeIDs: []string{"x"}, RecipientIDs: []string{"x"}}); err != nil {
			t.Fatal(err)
		}
		if st.calls != 0 {
			t.Fatalf("calls = %d, want 0", st.calls)
		}
	})
}

func TestHandleRejectsGarbage(t *testing.T) {
	t.Parallel()
	if err := testWorker(&stubDelivery{}).Handle(context.Background(), []byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDispatcherThroughQueue(t *testing.T) {
	t.Parallel()
	q := queue.NewInMemory(4)
	d := NewDispatcher(q, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Notify(ctx, Dispatch{Title: "nobody"})
	d.Notify(ctx, Dispatch{RecipientIDs: []string{"u1"}, Title: "Enrolled", Type: model.NotifyEnrollment})

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	msg := <-msgs
	if msg.Type != MessageType {
		t.Fatalf("type = %q", msg.Type)
	}
	var got Dispatch
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "Enrolled" || got.RecipientIDs[0] != "u1" {
		t.Fatalf("dispatch = %+v", got)
	}

	q2 := queue.NewInMemory(4)
	d2 := NewDispatcher(q2, logging.Discard())
	st := &stubDelivery{}
	done := make(chan error, 1)
	go func() { done <- testWorker(st).Run(ctx, q2) }()
	d2.Notify(ctx, Dispatch{RecipientIDs: []string{"u2"}, Title: "Graded"})

	deadline := time.After(2 * time.Second)
	for len(st.recipients()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := st.recipients(); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("delivered = %v", got)
	}
}
