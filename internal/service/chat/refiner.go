package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/legacyosint/osint-chatbot/internal/provider"
)

// Refiner folds durable facts from finished exchanges into each user's
// dossier. Refinement for the same user is serialized so concurrent turns
// cannot clobber each other's merge; different users proceed in parallel.
type Refiner struct {
	store  Store
	client provider.Client

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewRefiner(store Store, client provider.Client) *Refiner {
	return &Refiner{
		store:  store,
		client: client,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (r *Refiner) ownerLock(userID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[userID] = lock
	}
	return lock
}

// Refine rewrites the user's dossier in light of one exchange. An empty model
// reply is treated as "nothing to record" and leaves the dossier untouched.
func (r *Refiner) Refine(ctx context.Context, userID int64, userText, replyText string) error {
	lock := r.ownerLock(userID)
	lock.Lock()
	defer lock.Unlock()

	dossier, err := r.store.Dossier(ctx, userID)
	if err != nil {
		return fmt.Errorf("load dossier for user %d: %w", userID, err)
	}

	req := provider.Request{
		Contents: []provider.Content{{
			Role:  provider.RoleUser,
			Parts: []provider.Part{{Text: buildRefinePrompt(dossier, userText, replyText)}},
		}},
		Temperature:     defaultTemperature,
		MaxOutputTokens: 1024,
	}
	updated, err := r.client.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("refine dossier for user %d: %w", userID, err)
	}

	updated = strings.TrimSpace(updated)
	if updated == "" || updated == dossier {
		return nil
	}
	if err := r.store.UpsertDossier(ctx, userID, updated); err != nil {
		return fmt.Errorf("save dossier for user %d: %w", userID, err)
	}
	return nil
}
