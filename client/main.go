// Device-side companion: queues reports offline and syncs them when the
// server is reachable. Also useful for dev/test against a local server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"

	"civicspot/apiclient"
	"civicspot/connectivity"
	"civicspot/drafts"
	"civicspot/syncengine"
)

func main() {
	var (
		server   = flag.String("server", "http://127.0.0.1:8080", "ingestion server base URL")
		token    = flag.String("token", "", "bearer token for authenticated endpoints")
		spoolDir = flag.String("spool", defaultSpoolDir(), "draft spool directory")
		lat      = flag.Float64("lat", 0, "report latitude")
		lon      = flag.Float64("lon", 0, "report longitude")
		category = flag.String("category", "", "optional category override")
		note     = flag.String("note", "", "optional note")
		photo    = flag.String("photo", "", "path to the photo file")
		list     = flag.Bool("list", false, "list queued drafts and exit")
		retry    = flag.String("retry", "", "return a failed draft to the queue and exit")
		discard  = flag.String("discard", "", "delete a queued draft and exit")
		drain    = flag.Bool("drain", false, "watch connectivity and sync queued drafts")
	)
	flag.Parse()

	store, err := drafts.Open(*spoolDir, drafts.DefaultMaxDrafts)
	if err != nil {
		log.Fatalf("Failed to open draft spool: %v", err)
	}

	switch {
	case *list:
		listDrafts(store)
	case *retry != "":
		if err := store.Retry(*retry); err != nil {
			log.Fatalf("Failed to retry draft: %v", err)
		}
		log.Infof("Draft %s queued again", *retry)
	case *discard != "":
		if err := store.Discard(*discard); err != nil {
			log.Fatalf("Failed to discard draft: %v", err)
		}
		log.Infof("Draft %s discarded", *discard)
	case *photo != "":
		enqueue(store, drafts.Payload{
			Latitude:  *lat,
			Longitude: *lon,
			Category:  *category,
			Note:      *note,
			PhotoRef:  *photo,
		})
	}

	if !*drain {
		return
	}

	client := apiclient.New(*server, *token)
	engine := syncengine.New(store, client)
	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe(*server+"/health", 2*time.Second),
		connectivity.DefaultInterval, connectivity.DefaultDebounce)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	go func() {
		for r := range engine.Results() {
			switch {
			case r.Err != nil:
				log.Warnf("Draft %s failed: %v", r.DraftID, r.Err)
			case r.Created:
				log.Infof("Draft %s created report %s", r.DraftID, r.Outcome.Report.ID)
			default:
				c := r.Outcome.Conflict
				log.Infof("Draft %s joined report %s (%d upvotes): %s",
					r.DraftID, c.ReportID, c.UpvoteCount, c.Message)
			}
		}
	}()

	monitor.Start(ctx)
	defer monitor.Stop()

	log.Infof("Watching connectivity to %s, spool at %s", *server, *spoolDir)
	engine.Run(ctx, monitor.Events())
}

func enqueue(store *drafts.Store, p drafts.Payload) {
	if _, err := os.Stat(p.PhotoRef); err != nil {
		log.Fatalf("Photo not readable: %v", err)
	}
	d, err := store.Enqueue(p)
	if err != nil {
		log.Fatalf("Failed to queue draft: %v", err)
	}
	log.Infof("Queued draft %s (%.6f, %.6f)", d.ID, p.Latitude, p.Longitude)
}

func listDrafts(store *drafts.Store) {
	all, err := store.List()
	if err != nil {
		log.Fatalf("Failed to list drafts: %v", err)
	}
	if len(all) == 0 {
		fmt.Println("spool is empty")
		return
	}
	for _, d := range all {
		fmt.Printf("%s  %-7s  attempts=%d  (%.6f, %.6f)  %s\n",
			d.ID, d.Status, d.Attempts, d.Payload.Latitude, d.Payload.Longitude, d.LastError)
	}
}

func defaultSpoolDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".civicspot-drafts"
	}
	return home + "/.civicspot/drafts"
}
