package missingparts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/missingparts"
)

func TestOfferThenRequireThenApproveUnblocksAccept(t *testing.T) {
	tracker := missingparts.NewTracker[string](rejectingApprover{})
	client := tracker.NewClient()

	require.True(t, client.Offer("block-1", missingparts.Pending))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Accept(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "not required yet, Accept must not resolve")

	tracker.Require("block-1")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, err = client.Accept(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "required but not approved, still must not resolve")

	tracker.Approve("block-1")

	promise, err := client.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "block-1", promise.Part())
}

func TestApprovedOfferSkipsApprover(t *testing.T) {
	tracker := missingparts.NewTracker[string](rejectingApprover{})
	client := tracker.NewClient()

	require.True(t, client.Offer("block-1", missingparts.Approved))
	tracker.Require("block-1")

	promise, err := client.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "block-1", promise.Part())
}

func TestOnlyOneClientHoldsAcceptedPromiseAtATime(t *testing.T) {
	tracker := missingparts.NewTracker[string](nil)
	a := tracker.NewClient()
	b := tracker.NewClient()

	a.Offer("block-1", missingparts.Approved)
	b.Offer("block-1", missingparts.Approved)
	tracker.Require("block-1")

	promise, err := a.Accept(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Accept(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "b must not accept while a holds the promise")

	promise.Drop()

	promise2, err := b.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "block-1", promise2.Part())
}

func TestDroppingClientReleasesAcceptedPartAndClearsOffers(t *testing.T) {
	tracker := missingparts.NewTracker[string](nil)
	a := tracker.NewClient()
	b := tracker.NewClient()

	a.Offer("block-1", missingparts.Approved)
	b.Offer("block-1", missingparts.Approved)
	tracker.Require("block-1")

	_, err := a.Accept(context.Background())
	require.NoError(t, err)

	a.Drop()

	_, _, accepted, offeringCount := tracker.Status("block-1")
	assert.False(t, accepted)
	assert.Equal(t, 1, offeringCount)

	promise, err := b.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "block-1", promise.Part())
}

func TestCompletePromiseRemovesPartFromEveryClient(t *testing.T) {
	tracker := missingparts.NewTracker[string](nil)
	a := tracker.NewClient()
	b := tracker.NewClient()

	a.Offer("block-1", missingparts.Approved)
	b.Offer("block-1", missingparts.Approved)
	tracker.Require("block-1")

	promise, err := a.Accept(context.Background())
	require.NoError(t, err)
	promise.Complete()

	required, approved, accepted, offeringCount := tracker.Status("block-1")
	assert.False(t, required)
	assert.False(t, approved)
	assert.False(t, accepted)
	assert.Equal(t, 0, offeringCount)

	// b's offer set was cleared too: offering it again counts as a fresh
	// first offer.
	assert.True(t, b.Offer("block-1", missingparts.Approved))
}

type rejectingApprover struct{}

func (rejectingApprover) Approve(string) bool { return false }
