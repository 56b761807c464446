package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dprasetyo/userpulse/internal/event"
)

// Generator produces synthetic user activity for load and pipeline testing.
// It draws from a fixed user pool so repeated events exercise the
// find-or-create and aggregation paths, not just inserts.
type Generator struct {
	rng           *rand.Rand
	users         []string
	malformedRate float64
}

var countries = []string{"IN", "US", "UK", "CA", "AU", "SG", "DE", "FR"}

var searchQueries = []string{
	"laptop", "phone", "headphones", "python", "kafka",
	"devops", "machine learning", "aws", "docker", "kubernetes",
}

var pages = []string{
	"/", "/dashboard", "/products", "/cart", "/checkout",
	"/profile", "/settings", "/search", "/video", "/blog",
}

// kindWeights skews output toward browsing; purchases stay rare the way
// real traffic does.
var kindWeights = []struct {
	kind   string
	weight int
}{
	{event.KindView, 30},
	{event.KindClick, 25},
	{event.KindSearch, 15},
	{event.KindVideo, 10},
	{event.KindLogin, 8},
	{event.KindLogout, 7},
	{event.KindPurchase, 5},
}

// New creates a generator over a pool of userCount users. malformedRate in
// [0, 1] is the fraction of output that is deliberately broken (missing
// fields or invalid JSON) to exercise the dead-letter path.
func New(userCount int, malformedRate float64, seed int64) *Generator {
	if userCount <= 0 {
		userCount = 50
	}
	users := make([]string, userCount)
	for i := range users {
		users[i] = fmt.Sprintf("user_%05d", i+1)
	}

	return &Generator{
		rng:           rand.New(rand.NewSource(seed)),
		users:         users,
		malformedRate: malformedRate,
	}
}

// Next returns one message value ready to publish, and the key to partition
// it by (the user id, empty for malformed output).
func (g *Generator) Next() (key string, value []byte) {
	if g.malformedRate > 0 && g.rng.Float64() < g.malformedRate {
		return "", g.malformed()
	}

	userID := g.users[g.rng.Intn(len(g.users))]
	payload := g.payload(userID)
	raw, err := json.Marshal(payload)
	if err != nil {
		// Generated payloads are plain maps of marshalable values.
		panic(err)
	}
	return userID, raw
}

func (g *Generator) payload(userID string) map[string]interface{} {
	kind := g.pickKind()

	p := map[string]interface{}{
		"user_id":    userID,
		"event_id":   uuid.NewString(),
		"event_type": kind,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	switch kind {
	case event.KindPurchase:
		// Two-decimal amounts, rendered as a JSON number with exact text.
		cents := 100 + g.rng.Intn(49900)
		p["amount"] = json.Number(fmt.Sprintf("%d.%02d", cents/100, cents%100))
		p["event_metadata"] = map[string]interface{}{
			"payment_method": pick(g.rng, []string{"card", "wallet", "bank"}),
		}
	case event.KindVideo:
		p["duration"] = float64(30 + g.rng.Intn(3600))
		p["event_metadata"] = map[string]interface{}{
			"completion": g.rng.Intn(101),
		}
	case event.KindSearch:
		p["event_metadata"] = map[string]interface{}{
			"query": pick(g.rng, searchQueries),
		}
	case event.KindClick, event.KindView:
		p["event_metadata"] = map[string]interface{}{
			"page": pick(g.rng, pages),
		}
	}

	// Occasionally attach profile fields so first-sight registration has
	// something to record.
	if g.rng.Float64() < 0.2 {
		p["email"] = userID + "@example.com"
		p["country"] = pick(g.rng, countries)
	}

	return p
}

func (g *Generator) pickKind() string {
	total := 0
	for _, kw := range kindWeights {
		total += kw.weight
	}
	n := g.rng.Intn(total)
	for _, kw := range kindWeights {
		n -= kw.weight
		if n < 0 {
			return kw.kind
		}
	}
	return event.KindOther
}

// malformed emits the failure shapes the pipeline must quarantine.
func (g *Generator) malformed() []byte {
	switch g.rng.Intn(4) {
	case 0:
		return []byte(`{"user_id": "user_junk", "event_type": "click"`)
	case 1:
		raw, _ := json.Marshal(map[string]interface{}{
			"user_id":   g.users[g.rng.Intn(len(g.users))],
			"event_id":  uuid.NewString(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return raw
	case 2:
		raw, _ := json.Marshal(map[string]interface{}{
			"user_id":    g.users[g.rng.Intn(len(g.users))],
			"event_id":   uuid.NewString(),
			"event_type": "purchase",
			"amount":     -5.00,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return raw
	default:
		raw, _ := json.Marshal(map[string]interface{}{
			"user_id":    g.users[g.rng.Intn(len(g.users))],
			"event_id":   uuid.NewString(),
			"event_type": "click",
			"timestamp":  "not-a-timestamp",
		})
		return raw
	}
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}
