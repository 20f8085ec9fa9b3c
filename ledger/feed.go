package ledger

import (
	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"github.com/ethereum/go-ethereum/event"
)

var _ dapi.LiveFeed = (*Feed)(nil)

// Feed fans newly recorded blocks out to stream sessions.
//
// Publish blocks until every subscriber has taken the block, so
// subscribers must keep their channels drained or buffered.
// The zero value is ready to use.
type Feed struct {
	feed event.FeedOf[types.Block]
}

// NewFeed returns an empty feed.
func NewFeed() *Feed { return new(Feed) }

// SubscribeBlocks delivers every subsequently published block to ch
// until the subscription is cancelled.
func (f *Feed) SubscribeBlocks(ch chan<- types.Block) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Publish sends b to all subscribers and returns how many received it.
func (f *Feed) Publish(b types.Block) int {
	return f.feed.Send(b)
}
