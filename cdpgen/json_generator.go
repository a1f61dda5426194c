package cdpgen

import (
	"encoding/json"
	"math/rand"
)

// JSONGenerator creates random JSON documents used as response bodies.
type JSONGenerator struct {
	dict     *Dictionary
	maxDepth int
	maxNodes int
	rng      *rand.Rand
}

func NewJSONGenerator(dict *Dictionary, maxDepth, maxNodes int, rng *rand.Rand) *JSONGenerator {
	if maxDepth == 0 {
		maxDepth = 3
	}
	if maxNodes == 0 {
		maxNodes = 6
	}
	return &JSONGenerator{
		dict:     dict,
		maxDepth: maxDepth,
		maxNodes: maxNodes,
		rng:      rng,
	}
}

func (jg *JSONGenerator) GenerateObject(depth int) map[string]interface{} {
	if depth >= jg.maxDepth {
		return map[string]interface{}{
			jg.dict.RandomWord(jg.rng): jg.dict.RandomWord(jg.rng),
		}
	}

	nodeCount := jg.rng.Intn(jg.maxNodes) + 1
	obj := make(map[string]interface{}, nodeCount)

	for i := 0; i < nodeCount; i++ {
		key := jg.dict.RandomWord(jg.rng)

		// 30% chance of nesting deeper
		switch r := jg.rng.Float32(); {
		case depth < jg.maxDepth-1 && r < 0.3:
			obj[key] = jg.GenerateObject(depth + 1)
		case r < 0.45:
			obj[key] = jg.rng.Intn(10000)
		case r < 0.5:
			obj[key] = jg.rng.Intn(2) == 1
		default:
			obj[key] = jg.dict.RandomWord(jg.rng)
		}
	}

	return obj
}

// Body returns a serialized random object.
func (jg *JSONGenerator) Body() string {
	raw, err := json.Marshal(jg.GenerateObject(0))
	if err != nil {
		return "{}"
	}
	return string(raw)
}
