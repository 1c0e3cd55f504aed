package dedup_test

import (
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/dedup"
	"github.com/notifyhub/notification-engine/internal/domain"
)

func TestSet_SeenOrRemember(t *testing.T) {
	s := dedup.New(4)
	now := time.Now()
	fp := dedup.Fingerprint(domain.TypeLike, "user-1", "user-2", "post-9")

	if s.SeenOrRemember(fp, time.Minute, now) {
		t.Fatal("first sighting should not be reported as seen")
	}
	if !s.SeenOrRemember(fp, time.Minute, now.Add(time.Second)) {
		t.Fatal("second sighting within TTL should be reported as seen")
	}
}

func TestSet_ExpiresAfterTTL(t *testing.T) {
	s := dedup.New(4)
	now := time.Now()
	fp := dedup.Fingerprint(domain.TypeLike, "user-1", "user-2", "post-9")

	s.SeenOrRemember(fp, time.Second, now)
	if s.SeenOrRemember(fp, time.Second, now.Add(2*time.Second)) {
		t.Fatal("fingerprint should have expired")
	}
}

func TestSet_Sweep(t *testing.T) {
	s := dedup.New(4)
	now := time.Now()
	fp := dedup.Fingerprint(domain.TypeComment, "user-1", "user-2", "comment-1")

	s.SeenOrRemember(fp, time.Second, now)
	s.Sweep(now.Add(2 * time.Second))

	if s.SeenOrRemember(fp, time.Minute, now.Add(3*time.Second)) {
		t.Fatal("expected sweep to have evicted the fingerprint")
	}
}

func TestFingerprint_DistinctInputsProduceDistinctKeys(t *testing.T) {
	a := dedup.Fingerprint(domain.TypeLike, "u1", "u2", "post-1")
	b := dedup.Fingerprint(domain.TypeLike, "u1", "u2", "post-2")
	if a == b {
		t.Fatal("expected distinct fingerprints for distinct content keys")
	}
}
