package payitemsync

import (
	"testing"
	"time"
)

func TestArchiveObjectName(t *testing.T) {
	at := time.Date(2021, 10, 22, 23, 30, 0, 0, time.FixedZone("MMT", 6*3600+1800))
	got := archiveObjectName("abcd-efg-hijk", 12, at)
	if got != "payitem-sync/abcd-efg-hijk/2021-10-22/run-12.json" {
		t.Fatalf("unexpected object name %q", got)
	}
}
