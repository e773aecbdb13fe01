package board

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// Mismatch is one counter whose stored value disagrees with its index.
type Mismatch struct {
	Counter string `json:"counter"`
	Key     string `json:"key"`
	Stored  uint64 `json:"stored"`
	Actual  uint64 `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s[%s]: stored %d, index has %d live", m.Counter, m.Key, m.Stored, m.Actual)
}

// Report is the result of Verify.
type Report struct {
	Records        uint64     `json:"records"`
	Live           uint64     `json:"live"`
	Mismatches     []Mismatch `json:"mismatches"`
	HandleProblems []string   `json:"handle_problems"`

	// HeadViolations lists live top-level records the eviction walk has
	// already passed.
	HeadViolations []uint64 `json:"head_violations"`
}

// OK reports whether the ledger is fully consistent.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0 && len(r.HandleProblems) == 0 && len(r.HeadViolations) == 0
}

// Verify recounts every active counter from its index and cross-checks the
// handle directory against the profiles. It is a full scan and is meant for
// tooling and tests, not the request path.
func (s *Store) Verify(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := s.view(ctx, "verify", func(l *ledger) error {
		live := map[uint64]*Record{}
		records := l.tx.Bucket(BucketRecords)

		err := l.tx.Bucket(BucketChrono).ForEach(func(k, _ []byte) error {
			rec, err := decodeRecord(records.Get(k))
			if err != nil {
				return err
			}
			report.Records++
			if !rec.Deleted {
				live[rec.ID] = rec
			}
			return nil
		})
		if err != nil {
			return err
		}
		report.Live = uint64(len(live))

		head := l.meta(metaEvictHead)
		for id, rec := range live {
			if id < head && !rec.IsReply() {
				report.HeadViolations = append(report.HeadViolations, id)
			}
		}
		sort.Slice(report.HeadViolations, func(i, j int) bool {
			return report.HeadViolations[i] < report.HeadViolations[j]
		})

		if stored := l.meta(metaActiveTotal); stored != report.Live {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Counter: "active_total", Stored: stored, Actual: report.Live,
			})
		}

		byBucket := map[uint64]uint64{}
		err = l.tx.Bucket(BucketByBucket).ForEach(func(k, _ []byte) error {
			if _, ok := live[u64(k[8:])]; ok {
				byBucket[u64(k[:8])]++
			}
			return nil
		})
		if err != nil {
			return err
		}
		indexed := map[string]uint64{}
		err = l.tx.Bucket(BucketLiveTop).ForEach(func(k, _ []byte) error {
			indexed[fmt.Sprint(u64(k))] = 1
			return nil
		})
		if err != nil {
			return err
		}
		liveTop := map[string]uint64{}
		for id, rec := range live {
			if !rec.IsReply() {
				liveTop[fmt.Sprint(id)] = 1
			}
		}
		report.compare("live_top_index", indexed, liveTop)

		report.compareU64Keys("active_by_bucket", l.tx.Bucket(BucketActiveByBucket), byBucket)

		byParent := map[uint64]uint64{}
		err = l.tx.Bucket(BucketReplies).ForEach(func(k, _ []byte) error {
			if _, ok := live[u64(k[8:])]; ok {
				byParent[u64(k[:8])]++
			}
			return nil
		})
		if err != nil {
			return err
		}
		report.compareU64Keys("active_replies", l.tx.Bucket(BucketActiveReplies), byParent)

		byAuthor := map[string]uint64{}
		authors := l.tx.Bucket(BucketByAuthor)
		err = authors.ForEach(func(name, _ []byte) error {
			authored := authors.Bucket(name)
			if authored == nil {
				return nil
			}
			return authored.ForEach(func(k, _ []byte) error {
				if _, ok := live[u64(k)]; ok {
					byAuthor[string(name)]++
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
		stored := map[string]uint64{}
		err = l.tx.Bucket(BucketActiveByAuthor).ForEach(func(k, v []byte) error {
			stored[string(k)] = u64(v)
			return nil
		})
		if err != nil {
			return err
		}
		report.compare("active_by_author", stored, byAuthor)

		return report.checkHandles(l)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Report) compareU64Keys(counter string, b *bolt.Bucket, actual map[uint64]uint64) {
	stored := map[string]uint64{}
	_ = b.ForEach(func(k, v []byte) error {
		stored[fmt.Sprint(u64(k))] = u64(v)
		return nil
	})
	byKey := make(map[string]uint64, len(actual))
	for k, n := range actual {
		byKey[fmt.Sprint(k)] = n
	}
	r.compare(counter, stored, byKey)
}

// compare reports every key where stored and actual differ. A missing key
// counts as zero on either side.
func (r *Report) compare(counter string, stored, actual map[string]uint64) {
	keys := map[string]struct{}{}
	for k := range stored {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		if stored[k] != actual[k] {
			r.Mismatches = append(r.Mismatches, Mismatch{
				Counter: counter, Key: k, Stored: stored[k], Actual: actual[k],
			})
		}
	}
}

func (r *Report) checkHandles(l *ledger) error {
	held := map[string]string{}
	err := l.tx.Bucket(BucketProfiles).ForEach(func(k, v []byte) error {
		var p Profile
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		if !p.Active {
			return nil
		}
		if other, ok := held[p.Handle]; ok {
			r.HandleProblems = append(r.HandleProblems,
				fmt.Sprintf("handle %q is active on both %q and %q", p.Handle, other, p.Identity))
		}
		held[p.Handle] = p.Identity
		return nil
	})
	if err != nil {
		return err
	}

	directory := map[string]string{}
	err = l.tx.Bucket(BucketHandles).ForEach(func(k, v []byte) error {
		directory[string(k)] = string(v)
		if owner, ok := held[string(k)]; !ok || owner != string(v) {
			r.HandleProblems = append(r.HandleProblems,
				fmt.Sprintf("directory maps %q to %q, which does not actively hold it", k, v))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for handle, identity := range held {
		if directory[handle] != identity {
			r.HandleProblems = append(r.HandleProblems,
				fmt.Sprintf("active profile %q holds %q but the directory disagrees", identity, handle))
		}
	}
	sort.Strings(r.HandleProblems)
	return nil
}
