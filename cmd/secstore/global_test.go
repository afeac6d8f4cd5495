package main

import (
	"context"
	"testing"

	rtest "github.com/secstore/secstore/internal/test"
)

func TestBackendLocation(t *testing.T) {
	ctx := context.Background()
	dir := rtest.TempDir(t)

	// no location configured
	_, err := openBackend(ctx, "")
	rtest.Assert(t, err != nil, "empty location accepted")

	// opening a location that was never created fails
	_, err = openBackend(ctx, dir+"/missing")
	rtest.Assert(t, err != nil, "open succeeded on a missing store")

	be, err := createBackend(ctx, "local:"+dir+"/store")
	rtest.OK(t, err)
	rtest.OK(t, be.Close())

	be, err = openBackend(ctx, dir+"/store")
	rtest.OK(t, err)
	rtest.OK(t, be.Close())
}
