package identity

import (
	"fmt"

	"github.com/strixun/edgecore/internal/crypto"
)

var adjectives = []string{
	"Cool", "Swift", "Clever", "Brave", "Quiet", "Bold", "Bright", "Lucky",
	"Gentle", "Fierce", "Calm", "Eager", "Jolly", "Mellow", "Nimble", "Proud",
}

var nouns = []string{
	"Panda", "Falcon", "Otter", "Tiger", "Raven", "Wolf", "Heron", "Fox",
	"Lynx", "Badger", "Hawk", "Cobra", "Marten", "Osprey", "Puma", "Sparrow",
}

// GenerateDisplayName produces a random "AdjectiveNoun42"-style display
// name. Uniqueness against existing customers is enforced by the caller via
// the displayName index, retrying with a fresh draw on collision.
func GenerateDisplayName() (string, error) {
	adjIdx, err := randomIndex(len(adjectives))
	if err != nil {
		return "", err
	}
	nounIdx, err := randomIndex(len(nouns))
	if err != nil {
		return "", err
	}
	suffix, err := randomIndex(100)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%d", adjectives[adjIdx], nouns[nounIdx], suffix), nil
}

func randomIndex(n int) (int, error) {
	v, err := crypto.RandomUint64()
	if err != nil {
		return 0, err
	}
	return int(v % uint64(n)), nil
}
