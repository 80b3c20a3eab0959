package model

import (
	"context"
	"errors"
	"time"
)

// ErrResponseNotFound is returned by ResponseStore.Get on a miss.
var ErrResponseNotFound = errors.New("stored response not found")

type ResponseStore interface {
	// Get loads the answer stored for a normalized question.
	Get(ctx context.Context, question string) (*StoredResponse, error)

	// Put stores an answer for a normalized question, replacing any previous one.
	Put(ctx context.Context, question string, resp *StoredResponse) error
}

// StoredResponse is a live provider answer kept for replay while the provider is down.
type StoredResponse struct {
	Content  string    `json:"content"`
	Model    string    `json:"model,omitempty"`
	StoredAt time.Time `json:"storedAt"`
}
