package cache

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/heimdall-dns/heimdall/internal/dns/packet"
)

// snapshotVersion is bumped whenever the binary record layout changes.
const snapshotVersion uint32 = 1

// snapshotRecord is one persisted cache entry: the key fields plus the
// response serialized to wire bytes (so persistence doesn't need to know
// about packet.DNSRecord's internal shape) and the absolute expiry as
// Unix seconds, so a reload can tell a stale entry from a live one
// without recomputing anything.
type snapshotRecord struct {
	Domain     string
	QType      uint16
	QClass     uint16
	Wire       []byte
	ExpiresAt  int64
	FinalTTL   uint32
	IsNegative bool
}

type snapshotFile struct {
	Version    uint32
	SavedAtUTC int64
	Entries    []snapshotRecord
}

// legacySnapshotRecord mirrors the prior JSON-era on-disk shape,
// accepted for one version of backward compatibility.
type legacySnapshotRecord struct {
	Domain string `json:"domain"`
	QType  uint16 `json:"qtype"`
	QClass uint16 `json:"qclass"`
	Wire   []byte `json:"wire"`
	Expiry int64  `json:"expiry"`
}

type legacySnapshotFile struct {
	Entries []legacySnapshotRecord `json:"entries"`
}

// Snapshot writes every non-expired entry in the main tier to path,
// staging to "<path>.tmp" and renaming into place so a crash mid-write
// never leaves a truncated snapshot.
func (c *Cache) Snapshot(path string) error {
	now := time.Now()

	c.main.mu.RLock()
	file := snapshotFile{Version: snapshotVersion, SavedAtUTC: now.Unix()}
	for k, e := range c.main.m {
		if e.expired(now) {
			continue
		}
		wire, err := encodeResponse(e.Response)
		if err != nil {
			continue
		}
		file.Entries = append(file.Entries, snapshotRecord{
			Domain:     k.Domain,
			QType:      uint16(k.QType),
			QClass:     k.QClass,
			Wire:       wire,
			ExpiresAt:  e.InsertedAt.Add(time.Duration(e.FinalTTL) * time.Second).Unix(),
			FinalTTL:   e.FinalTTL,
			IsNegative: e.IsNegative,
		})
	}
	c.main.mu.RUnlock()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath) // #nosec G304 -- path is operator-configured, not user input
	if err != nil {
		return fmt.Errorf("cache: create snapshot temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(file); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cache: rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Snapshot (or, for one version of
// backward compatibility, the legacy JSON format identified by a
// leading '{' byte) and reinserts every entry whose absolute expiry is
// still in the future.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-configured, not user input
	if err != nil {
		return fmt.Errorf("cache: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if data[0] == '{' {
		return c.loadLegacyJSON(data)
	}
	return c.loadBinary(data)
}

func (c *Cache) loadBinary(data []byte) error {
	var file snapshotFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return fmt.Errorf("cache: decode snapshot: %w", err)
	}
	now := time.Now()
	for _, rec := range file.Entries {
		if rec.ExpiresAt <= now.Unix() {
			continue
		}
		resp, err := decodeResponse(rec.Wire)
		if err != nil {
			continue
		}
		key := NewKey(rec.Domain, packet.QueryType(rec.QType), rec.QClass)
		c.reinsert(key, resp, rec.FinalTTL, rec.IsNegative, time.Unix(rec.ExpiresAt, 0).Add(-time.Duration(rec.FinalTTL)*time.Second))
	}
	return nil
}

func (c *Cache) loadLegacyJSON(data []byte) error {
	var file legacySnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("cache: decode legacy snapshot: %w", err)
	}
	now := time.Now()
	for _, rec := range file.Entries {
		if rec.Expiry <= now.Unix() {
			continue
		}
		resp, err := decodeResponse(rec.Wire)
		if err != nil {
			continue
		}
		ttl := uint32(rec.Expiry - now.Unix()) // #nosec G115 -- bounded positive by the check above
		key := NewKey(rec.Domain, packet.QueryType(rec.QType), rec.QClass)
		c.reinsert(key, resp, ttl, IsNegative(resp), now)
	}
	return nil
}

// reinsert restores a loaded entry into the main tier and tracks it in
// the LRU/suffix indexes exactly as a fresh Insert would.
func (c *Cache) reinsert(key Key, resp *packet.DNSPacket, finalTTL uint32, negative bool, insertedAt time.Time) {
	entry := &Entry{
		Response:   resp,
		InsertedAt: insertedAt,
		FinalTTL:   finalTTL,
		IsNegative: negative,
	}
	c.main.mu.Lock()
	c.main.m[key] = entry
	c.main.mu.Unlock()
	c.mainSize.Add(1)
	c.lru.touch(key.Hash())
	c.suff.add(key)
}

func encodeResponse(resp *packet.DNSPacket) ([]byte, error) {
	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	if err := resp.Write(buf); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Position())
	copy(out, buf.Buf[:buf.Position()])
	return out, nil
}

func decodeResponse(wire []byte) (*packet.DNSPacket, error) {
	buf := packet.NewBytePacketBuffer()
	buf.Load(wire)
	resp := packet.NewDNSPacket()
	if err := resp.FromBuffer(buf); err != nil {
		return nil, err
	}
	return resp, nil
}
