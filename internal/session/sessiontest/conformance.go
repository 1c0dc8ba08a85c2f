// Package sessiontest provides a behavioral test suite shared by every
// session.Store implementation.
package sessiontest

import (
	"errors"
	"sync"
	"testing"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

// Run exercises the Store contract against stores produced by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Helper()

	t.Run("GetOrCreateEmpty", func(t *testing.T) {
		st := newStore(t)
		s, err := st.GetOrCreate("s1")
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if s.ID != "s1" || len(s.Messages) != 0 || s.TotalTokens != 0 || s.Context != "" {
			t.Errorf("new session = %+v, want empty", s)
		}
		if s.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
		if _, err := st.GetOrCreate("s1"); err != nil {
			t.Errorf("second GetOrCreate: %v", err)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.Get("missing"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("HistoryRoundTrip", func(t *testing.T) {
		st := newStore(t)
		want := []session.Entry{
			{Role: provider.MessageRoleUser, Content: "M1"},
			{Role: provider.MessageRoleAssistant, Content: ""},
			{Role: provider.MessageRoleSystem, Content: "M3"},
		}
		for _, e := range want {
			if err := st.AppendMessage("s1", e.Role, e.Content); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
		}

		got, err := st.History("s1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
				t.Errorf("msg[%d] = %+v, want %+v", i, got[i], want[i])
			}
			if got[i].Timestamp.IsZero() {
				t.Errorf("msg[%d] has no timestamp", i)
			}
		}
	})

	t.Run("AddTokens", func(t *testing.T) {
		st := newStore(t)
		for _, n := range []int{12, 40, 0} {
			if err := st.AddTokens("s1", n); err != nil {
				t.Fatalf("AddTokens(%d): %v", n, err)
			}
		}
		if err := st.AddTokens("s1", -1); !errors.Is(err, session.ErrInvalidArgument) {
			t.Errorf("negative err = %v, want ErrInvalidArgument", err)
		}
		s, _ := st.Get("s1")
		if s.TotalTokens != 52 {
			t.Errorf("TotalTokens = %d, want 52", s.TotalTokens)
		}
	})

	t.Run("SetContextReplaces", func(t *testing.T) {
		st := newStore(t)
		_ = st.SetContext("s1", "manual v1")
		_ = st.SetContext("s1", "manual v2")
		s, _ := st.Get("s1")
		if s.Context != "manual v2" {
			t.Errorf("Context = %q, want manual v2", s.Context)
		}
	})

	t.Run("CommitAtomic", func(t *testing.T) {
		st := newStore(t)
		ok := session.Commit{
			Entries: []session.Entry{
				{Role: provider.MessageRoleUser, Content: "q"},
				{Role: provider.MessageRoleAssistant, Content: "a"},
			},
			Tokens: 52,
		}
		if err := st.Commit("s1", ok); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		bad := session.Commit{
			Entries: []session.Entry{
				{Role: provider.MessageRoleUser, Content: "q2"},
				{Role: "robot", Content: "a2"},
			},
			Tokens: 10,
		}
		if err := st.Commit("s1", bad); !errors.Is(err, session.ErrInvalidArgument) {
			t.Fatalf("bad commit err = %v, want ErrInvalidArgument", err)
		}

		s, _ := st.Get("s1")
		if len(s.Messages) != 2 || s.TotalTokens != 52 {
			t.Errorf("after rejected commit: %d messages, %d tokens", len(s.Messages), s.TotalTokens)
		}
	})

	t.Run("InvalidID", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.GetOrCreate(""); !errors.Is(err, session.ErrInvalidArgument) {
			t.Errorf("GetOrCreate err = %v", err)
		}
		if err := st.AppendMessage("", provider.MessageRoleUser, "x"); !errors.Is(err, session.ErrInvalidArgument) {
			t.Errorf("AppendMessage err = %v", err)
		}
	})

	t.Run("Isolation", func(t *testing.T) {
		st := newStore(t)
		_ = st.SetContext("s2", "s2 doc")
		_ = st.Commit("s2", session.Commit{Entries: []session.Entry{{Role: provider.MessageRoleUser, Content: "hi"}}, Tokens: 3})
		before, _ := st.Get("s2")

		_ = st.SetContext("s1", "s1 doc")
		_ = st.Commit("s1", session.Commit{Entries: []session.Entry{{Role: provider.MessageRoleUser, Content: "x"}}, Tokens: 99})
		_ = st.Delete("s1")

		after, _ := st.Get("s2")
		if after.Context != before.Context || after.TotalTokens != before.TotalTokens || len(after.Messages) != len(before.Messages) {
			t.Errorf("s2 changed: before=%+v after=%+v", before, after)
		}
	})

	t.Run("DeleteAndList", func(t *testing.T) {
		st := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			if _, err := st.GetOrCreate(id); err != nil {
				t.Fatal(err)
			}
		}
		if err := st.Delete("b"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := st.Delete("never"); err != nil {
			t.Errorf("Delete unknown: %v", err)
		}
		list, err := st.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("List len = %d, want 2", len(list))
		}
		if _, err := st.Get("b"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("deleted session still present: %v", err)
		}
	})

	t.Run("ConcurrentCommits", func(t *testing.T) {
		st := newStore(t)
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := st.Commit("s1", session.Commit{
					Entries: []session.Entry{
						{Role: provider.MessageRoleUser, Content: "q"},
						{Role: provider.MessageRoleAssistant, Content: "a"},
					},
					Tokens: 1,
				})
				if err != nil {
					t.Errorf("Commit: %v", err)
				}
			}()
		}
		wg.Wait()

		msgs, _ := st.History("s1")
		if len(msgs) != 40 {
			t.Fatalf("messages = %d, want 40", len(msgs))
		}
		for i, m := range msgs {
			want := provider.MessageRoleUser
			if i%2 == 1 {
				want = provider.MessageRoleAssistant
			}
			if m.Role != want {
				t.Fatalf("msg[%d].Role = %s, commits interleaved", i, m.Role)
			}
		}
	})
}
