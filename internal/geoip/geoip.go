// Package geoip resolves client IPs to city names for per-city metric tags
// and popularity rollups. The mmdb database is refreshed on a cron schedule
// and hot-reloaded without dropping in-flight lookups.
package geoip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"

	"github.com/medina-app/medina/internal/netutil"
)

// GeoReader abstracts the database reader for testing.
type GeoReader interface {
	LookupCity(ip netip.Addr) string
	Close() error
}

// OpenFunc opens a database file and returns a GeoReader.
type OpenFunc func(path string) (GeoReader, error)

type maxmindReader struct {
	r *maxminddb.Reader
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

func (m *maxmindReader) LookupCity(ip netip.Addr) string {
	var rec cityRecord
	if err := m.r.Lookup(ip.AsSlice(), &rec); err != nil {
		return ""
	}
	return strings.ToLower(rec.City.Names["en"])
}

func (m *maxmindReader) Close() error { return m.r.Close() }

// MaxMindOpen is the production OpenFunc.
func MaxMindOpen(path string) (GeoReader, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &maxmindReader{r: r}, nil
}

// ServiceConfig configures the GeoIP service.
type ServiceConfig struct {
	CacheDir       string // directory where the mmdb file is stored
	DBFilename     string // default "city.mmdb"
	DBURL          string // download URL; empty disables updates
	UpdateSchedule string // cron expression, default "0 7 * * *"
	OpenDB         OpenFunc
	Downloader     netutil.Downloader
}

// Service provides city lookup with hot-reloading.
type Service struct {
	mu     sync.RWMutex
	reader GeoReader // nil until first load

	cacheDir    string
	dbFilename  string
	dbURL       string
	openDB      OpenFunc
	downloader  netutil.Downloader
	cron        *cron.Cron
	cronEntryID cron.EntryID
	updateMu    sync.Mutex // serializes UpdateNow calls
	lifeCtx     context.Context
	lifeCancel  context.CancelFunc
}

// NewService creates the GeoIP service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.DBFilename == "" {
		cfg.DBFilename = "city.mmdb"
	}
	if cfg.UpdateSchedule == "" {
		cfg.UpdateSchedule = "0 7 * * *"
	}
	c := cron.New()
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Service{
		cacheDir:   cfg.CacheDir,
		dbFilename: cfg.DBFilename,
		dbURL:      cfg.DBURL,
		openDB:     cfg.OpenDB,
		downloader: cfg.Downloader,
		cron:       c,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}

	if cfg.DBURL != "" {
		entryID, err := c.AddFunc(cfg.UpdateSchedule, func() {
			if err := s.UpdateNow(); err != nil {
				log.Printf("[geoip] scheduled update failed: %v", err)
			}
		})
		if err != nil {
			log.Printf("[geoip] invalid cron expression %q: %v", cfg.UpdateSchedule, err)
		} else {
			s.cronEntryID = entryID
		}
	}

	return s
}

// Start loads the local database if present, triggers a background download
// when absent or stale, and starts the scheduler.
func (s *Service) Start() error {
	dbPath := filepath.Join(s.cacheDir, s.dbFilename)
	info, err := os.Stat(dbPath)
	switch {
	case err == nil:
		if err := s.reloadReader(dbPath); err != nil {
			log.Printf("[geoip] failed to load initial db: %v", err)
		}
		if s.dbURL != "" && s.isStale(info.ModTime()) {
			log.Println("[geoip] database is stale, triggering background update")
			go func() {
				if err := s.UpdateNow(); err != nil {
					log.Printf("[geoip] startup update failed: %v", err)
				}
			}()
		}
	case os.IsNotExist(err):
		if s.dbURL == "" {
			log.Println("[geoip] no local database and no download URL; city lookups disabled")
		} else {
			log.Println("[geoip] no local database found, triggering background download")
			go func() {
				if err := s.UpdateNow(); err != nil {
					log.Printf("[geoip] initial download failed: %v", err)
				}
			}()
		}
	default:
		return fmt.Errorf("geoip: stat db %s: %w", dbPath, err)
	}
	s.cron.Start()
	return nil
}

// isStale reports whether the file's mtime is older than twice the gap
// between two consecutive cron firings, to tolerate jitter.
func (s *Service) isStale(modTime time.Time) bool {
	entry := s.cron.Entry(s.cronEntryID)
	if entry.ID == 0 || entry.Schedule == nil {
		return time.Since(modTime) > 32*24*time.Hour
	}
	now := time.Now()
	next := entry.Schedule.Next(now)
	interval := entry.Schedule.Next(next).Sub(next)
	if interval <= 0 {
		interval = 32 * 24 * time.Hour
	}
	return time.Since(modTime) > 2*interval
}

// Stop stops the scheduler and closes the reader.
func (s *Service) Stop() {
	if s.lifeCancel != nil {
		s.lifeCancel()
	}
	s.cron.Stop()
	s.mu.Lock()
	r := s.reader
	s.reader = nil
	s.mu.Unlock()
	if r != nil {
		r.Close()
	}
}

// LookupCity returns the lowercase English city name for ip, or "" when the
// database is missing or has no record.
func (s *Service) LookupCity(ip netip.Addr) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return ""
	}
	return s.reader.LookupCity(ip)
}

// UpdateNow downloads the database, verifies the published checksum when one
// exists alongside it, atomically replaces the local file, and hot-reloads.
func (s *Service) UpdateNow() error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if s.downloader == nil {
		return fmt.Errorf("geoip: no downloader configured")
	}
	if s.dbURL == "" {
		return fmt.Errorf("geoip: no download URL configured")
	}

	ctx := context.Background()
	if s.lifeCtx != nil {
		ctx = s.lifeCtx
	}

	dbData, err := s.downloader.Download(ctx, s.dbURL)
	if err != nil {
		return fmt.Errorf("geoip: download db: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.cacheDir, s.dbFilename+".tmp.*")
	if err != nil {
		return fmt.Errorf("geoip: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(dbData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("geoip: write temp: %w", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpPath) // no-op once renamed

	if sumBody, err := s.downloader.Download(ctx, s.dbURL+".sha256sum"); err == nil {
		expected := parseSHA256Sum(string(sumBody))
		if expected == "" {
			return fmt.Errorf("geoip: could not parse sha256sum from %q", string(sumBody))
		}
		if err := VerifySHA256(tmpPath, expected); err != nil {
			return err
		}
	} else {
		log.Printf("[geoip] no checksum published at %s.sha256sum, skipping verification", s.dbURL)
	}

	dbPath := filepath.Join(s.cacheDir, s.dbFilename)
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return fmt.Errorf("geoip: atomic replace: %w", err)
	}
	return s.reloadReader(dbPath)
}

// reloadReader atomically swaps in a reader for the file at path.
func (s *Service) reloadReader(path string) error {
	if s.openDB == nil {
		return fmt.Errorf("geoip: no OpenDB function configured")
	}
	newReader, err := s.openDB(path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", path, err)
	}
	s.mu.Lock()
	old := s.reader
	s.reader = newReader
	s.mu.Unlock()
	// Safe to close old: all RLock holders on it have released.
	if old != nil {
		old.Close()
	}
	return nil
}

// VerifySHA256 checks that the file at path has the expected SHA256 hash.
func VerifySHA256(path, expectedHex string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	got := sha256.Sum256(data)
	gotHex := hex.EncodeToString(got[:])
	if gotHex != expectedHex {
		return fmt.Errorf("geoip: sha256 mismatch: got %s, want %s", gotHex, expectedHex)
	}
	return nil
}

// LastUpdated returns the modification time of the database file.
func (s *Service) LastUpdated() time.Time {
	info, err := os.Stat(filepath.Join(s.cacheDir, s.dbFilename))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// parseSHA256Sum extracts the hex hash from "<hash>  <filename>" text.
func parseSHA256Sum(s string) string {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) >= 1 && len(parts[0]) == 64 {
		return strings.ToLower(parts[0])
	}
	return ""
}
