// Load generator for the ingestion endpoint: fires concurrent submissions
// clustered around one point so the duplicate-detection lock path gets real
// contention. Useful for sizing SPATIAL_LOCK_TIMEOUT and retry settings.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type submitPayload struct {
	Version   string  `json:"version"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category,omitempty"`
	Photo     []byte  `json:"photo"`
}

func main() {
	endpoint := flag.String("endpoint", os.Getenv("SUBMIT_ENDPOINT"), "submit endpoint, e.g. http://localhost:8080/api/v3/reports")
	token := flag.String("token", os.Getenv("SUBMIT_TOKEN"), "Bearer token")
	total := flag.Int("total", 1000, "number of submissions to send")
	workers := flag.Int("workers", 16, "concurrent submitters")
	lat := flag.Float64("lat", 40.0, "cluster center latitude")
	lon := flag.Float64("lon", -111.0, "cluster center longitude")
	spread := flag.Float64("spread", 200, "cluster spread in meters")
	flag.Parse()

	if *endpoint == "" {
		log.Fatal("endpoint required (use -endpoint or SUBMIT_ENDPOINT env)")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	jobs := make(chan int)

	var created, conflicted, failed int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(seed)))
			for range jobs {
				// Jitter within the spread so some submissions collide
				// inside the 50m duplicate radius and some do not.
				dLat := (rng.Float64()*2 - 1) * *spread / 111000.0
				dLon := (rng.Float64()*2 - 1) * *spread / 111000.0
				photo := make([]byte, 64)
				rng.Read(photo)

				body, _ := json.Marshal(submitPayload{
					Version:   "2.0",
					Latitude:  *lat + dLat,
					Longitude: *lon + dLon,
					Photo:     photo,
				})
				req, err := http.NewRequest("POST", *endpoint, bytes.NewBuffer(body))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+*token)

				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				resp.Body.Close()
				switch resp.StatusCode {
				case http.StatusCreated:
					atomic.AddInt64(&created, 1)
				case http.StatusConflict:
					atomic.AddInt64(&conflicted, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}(w)
	}

	for i := 0; i < *total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("sent %d in %s (%.1f/s): %d created, %d collapsed, %d failed\n",
		*total, elapsed.Round(time.Millisecond),
		float64(*total)/elapsed.Seconds(), created, conflicted, failed)
}
