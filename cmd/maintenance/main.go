package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/signals-backend/internal/app"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var users idList
	var stale bool
	var olderThan time.Duration
	var retention bool
	flag.Var(&users, "user", "user_id whose centroid to rebuild from history (repeatable)")
	flag.BoolVar(&stale, "stale", false, "rebuild every centroid not updated within -older-than")
	flag.DurationVar(&olderThan, "older-than", 0, "staleness cutoff for -stale (default: policy recompute_after)")
	flag.BoolVar(&retention, "retention", false, "delete unactioned decisions past the retention window")
	flag.Parse()

	if len(users) == 0 && !stale && !retention {
		fmt.Println("nothing to do; pass -user, -stale or -retention")
		os.Exit(2)
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	coord := application.Services.Feedback
	failed := false

	for _, s := range users {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			fmt.Printf("skip invalid user_id %q\n", s)
			continue
		}
		st, err := coord.RecomputeCentroid(ctx, id)
		if err != nil {
			fmt.Printf("recompute %s failed: %v\n", id, err)
			failed = true
			continue
		}
		fmt.Printf("recomputed %s saved=%d skipped=%d version=%d\n", id, st.Saved, st.Skipped, st.Version)
	}

	if stale {
		report, err := coord.RecomputeStale(ctx, olderThan)
		if err != nil {
			fmt.Printf("stale recompute failed: %v\n", err)
			failed = true
		}
		fmt.Printf("stale recompute: recomputed=%d failed=%d\n", report.Recomputed, report.Failed)
	}

	if retention {
		n, err := coord.CleanupRetention(ctx, time.Now())
		if err != nil {
			fmt.Printf("retention cleanup failed: %v\n", err)
			failed = true
		}
		fmt.Printf("retention cleanup: deleted=%d\n", n)
	}

	if failed {
		application.Close()
		os.Exit(1)
	}
}
