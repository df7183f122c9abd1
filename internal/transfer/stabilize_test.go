package transfer_test

import (
	"context"
	"errors"
	"testing"

	"resave/internal/drive"
	"resave/internal/testsupport"
	"resave/internal/transfer"
)

func scriptedListings(listings [][]drive.Item) func(context.Context, string) ([]drive.Item, error) {
	index := 0
	return func(context.Context, string) ([]drive.Item, error) {
		if index >= len(listings) {
			return listings[len(listings)-1], nil
		}
		items := listings[index]
		index++
		return items, nil
	}
}

func TestStabilizeReturnsOnExpectedCount(t *testing.T) {
	remote := testsupport.NewFakeRemote()
	remote.ListFolderFn = scriptedListings([][]drive.Item{
		{},
		{{ID: "1", Name: "a", Size: 1}},
		{{ID: "1", Name: "a", Size: 1}, {ID: "2", Name: "b", Size: 1}},
	})

	stabilizer := transfer.NewStabilizer(remote, 10, 0, nil)
	items, err := stabilizer.WaitForListing(context.Background(), "dest", 2)
	if err != nil {
		t.Fatalf("WaitForListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if got := remote.CallCount("listfolder"); got != 3 {
		t.Fatalf("listfolder called %d times, want 3", got)
	}
}

func TestStabilizeSettlesOnConsecutiveAgreement(t *testing.T) {
	remote := testsupport.NewFakeRemote()
	remote.ListFolderFn = scriptedListings([][]drive.Item{
		{{ID: "1", Name: "a", Size: 1}},
		{{ID: "1", Name: "a", Size: 1}, {ID: "2", Name: "b", Size: 1}},
		{{ID: "1", Name: "a", Size: 1}, {ID: "2", Name: "b", Size: 1}},
	})

	// Expected count unknown: two identical polls in a row settle it.
	stabilizer := transfer.NewStabilizer(remote, 10, 0, nil)
	items, err := stabilizer.WaitForListing(context.Background(), "dest", 0)
	if err != nil {
		t.Fatalf("WaitForListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if got := remote.CallCount("listfolder"); got != 3 {
		t.Fatalf("listfolder called %d times, want 3", got)
	}
}

func TestStabilizeTreatsReencodedNamesAsEqual(t *testing.T) {
	remote := testsupport.NewFakeRemote()
	// Same name, full-width vs half-width encoding between polls.
	remote.ListFolderFn = scriptedListings([][]drive.Item{
		{{ID: "1", Name: "剧集ＳＥ０１", Size: 1}},
		{{ID: "1", Name: "剧集SE01", Size: 1}},
	})

	stabilizer := transfer.NewStabilizer(remote, 10, 0, nil)
	items, err := stabilizer.WaitForListing(context.Background(), "dest", 0)
	if err != nil {
		t.Fatalf("WaitForListing: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got := remote.CallCount("listfolder"); got != 2 {
		t.Fatalf("listfolder called %d times, want 2", got)
	}
}

func TestStabilizeFallsBackToLastNonEmpty(t *testing.T) {
	remote := testsupport.NewFakeRemote()
	remote.ListFolderFn = scriptedListings([][]drive.Item{
		{},
		{{ID: "1", Name: "a", Size: 1}},
		{{ID: "1", Name: "a", Size: 1}, {ID: "2", Name: "b", Size: 2}},
		{{ID: "1", Name: "a", Size: 1}, {ID: "2", Name: "b", Size: 3}},
	})

	// Budget of 3 attempts, expecting 5 items that never arrive: the last
	// non-empty listing wins over failing.
	stabilizer := transfer.NewStabilizer(remote, 3, 0, nil)
	items, err := stabilizer.WaitForListing(context.Background(), "dest", 5)
	if err != nil {
		t.Fatalf("WaitForListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
}

func TestStabilizeMarksPersistentlyEmptyFolderNotVisible(t *testing.T) {
	remote := testsupport.NewFakeRemote()
	remote.ListFolderFn = scriptedListings([][]drive.Item{{}})

	stabilizer := transfer.NewStabilizer(remote, 3, 0, nil)
	_, err := stabilizer.WaitForListing(context.Background(), "dest", 4)
	if !errors.Is(err, transfer.ErrNotVisible) {
		t.Fatalf("error = %v, want ErrNotVisible", err)
	}
	if errors.Is(err, transfer.ErrTransient) {
		t.Fatalf("error = %v, should not be ErrTransient", err)
	}
}
