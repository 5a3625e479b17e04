package attester

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"zk-attestation/shared"

	"github.com/xeipuuv/gojsonschema"
)

const (
	schemaAttest            = "attest"
	schemaVerifyAttestation = "verify_attestation"
	schemaSubmitProof       = "submit_proof"
	schemaVerifyClaim       = "verify_claim"
)

var requestSchemas = map[string]map[string]interface{}{
	schemaAttest: {
		"type":     "object",
		"required": []interface{}{"program_id", "input_bytes"},
		"properties": map[string]interface{}{
			"program_id": map[string]interface{}{"type": "string", "minLength": 1},
			"input_bytes": map[string]interface{}{
				"oneOf": []interface{}{
					map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 255},
					},
					map[string]interface{}{"type": "string", "format": "hex"},
				},
			},
			"verify_locally": map[string]interface{}{"type": "boolean"},
		},
	},
	schemaVerifyAttestation: {
		"type":     "object",
		"required": []interface{}{"program_id", "proof", "public_values"},
		"properties": map[string]interface{}{
			"program_id":    map[string]interface{}{"type": "string", "minLength": 1},
			"proof":         map[string]interface{}{"type": "string", "format": "hex", "minLength": 2},
			"public_values": map[string]interface{}{"type": "string", "format": "hex"},
		},
	},
	schemaSubmitProof: {
		"type":     "object",
		"required": []interface{}{"session_id", "tool_name", "proof"},
		"properties": map[string]interface{}{
			"session_id":         map[string]interface{}{"type": "string", "minLength": 1},
			"tool_name":          map[string]interface{}{"type": "string", "minLength": 1},
			"timestamp":          map[string]interface{}{"type": "integer", "minimum": 0},
			"verified":           map[string]interface{}{"type": "boolean"},
			"onchain_compatible": map[string]interface{}{"type": "boolean"},
			"submitted_by":       map[string]interface{}{"type": []interface{}{"string", "null"}},
			"sequence":           map[string]interface{}{"type": []interface{}{"integer", "null"}, "minimum": 0, "maximum": 4294967295},
			"related_proof_id":   map[string]interface{}{"type": []interface{}{"string", "null"}},
			"workflow_stage":     map[string]interface{}{"type": []interface{}{"string", "null"}},
		},
	},
	schemaVerifyClaim: {
		"type":     "object",
		"required": []interface{}{"proof"},
		"properties": map[string]interface{}{
			"strategy": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"offchain-sdk", "onchain-gas-free", "onchain-transactional", "sdk", "gas-free", "transactional"},
			},
			"proof": map[string]interface{}{"type": "object"},
		},
	},
}

// Cache of compiled request schemas
var compiledSchemas = make(map[string]*gojsonschema.Schema)
var schemaMutex sync.RWMutex

func init() {
	gojsonschema.FormatCheckers.Add("hex", hexFormatChecker{})
}

var hexPattern = regexp.MustCompile(`^(0x|0X)?([0-9a-fA-F]{2})*$`)

type hexFormatChecker struct{}

func (hexFormatChecker) IsFormat(input interface{}) bool {
	str, ok := input.(string)
	if !ok {
		return false
	}
	return hexPattern.MatchString(str)
}

// validateRequest checks a raw JSON body against the named schema
func validateRequest(name string, body []byte) error {
	schemaMutex.RLock()
	compiled, exists := compiledSchemas[name]
	schemaMutex.RUnlock()

	if !exists {
		sch, ok := requestSchemas[name]
		if !ok {
			return fmt.Errorf("no request schema named %q", name)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(sch))
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", name, err)
		}

		schemaMutex.Lock()
		compiledSchemas[name] = schema
		schemaMutex.Unlock()
		compiled = schema
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return shared.NewInputError(name, "request body is not valid JSON: %v", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return shared.NewInputError(name, "request validation failed: %s", b.String())
	}
	return nil
}
