package client

import (
	"context"

	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/store"
)

// openStore opens the chat-to-session mapping database. A failure is
// logged and yields a nil store; the conversation then runs without a
// cached session id rather than aborting.
func openStore(path string) *store.Store {
	st, err := store.Open(path)
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("session store unavailable")
		return nil
	}
	return st
}

func lookupSession(ctx context.Context, st *store.Store, chatID string) string {
	if st == nil {
		return ""
	}
	mapping, ok := st.Get(ctx, chatID)
	if !ok {
		return ""
	}
	return mapping.SessionID
}

func persistSession(ctx context.Context, st *store.Store, chatID, sessionID string) {
	if st == nil || sessionID == "" {
		return
	}
	st.Upsert(ctx, chatID, sessionID)
}
