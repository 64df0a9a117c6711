// Package stratum implements the WebSocket JSON-RPC wire protocol miners
// speak to submit shares and receive job notifications.
package stratum

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/starkpool/coordinator/internal/validator"
)

// JSON-RPC error codes per the wire protocol.
const (
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// Message is the single wire envelope used for requests, responses, and
// notifications alike; fields are optional depending on direction.
type Message struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the wire representation of a JSON-RPC error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newResult(id *uint64, result interface{}) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Result: raw}, nil
}

func newError(id *uint64, code int, message string) *Message {
	return &Message{ID: id, Error: &RPCError{Code: code, Message: message}}
}

func newNotification(method string, params interface{}) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Message{Method: method, Params: raw}, nil
}

// notifyParams is the payload of a mining.notify notification. Byte fields
// are hex-encoded lowercase on the wire.
type notifyParams struct {
	JobID           string `json:"job_id"`
	BlockCommitment string `json:"block_commitment"`
	Target          string `json:"target"`
	ShareTarget     string `json:"share_target"`
	CleanJobs       bool   `json:"clean_jobs"`
}

// authorizeParams is the params array of mining.authorize: [worker, password?].
type authorizeParams []interface{}

func parseAuthorize(raw json.RawMessage) (worker string, err error) {
	var params []interface{}
	if err := json.Unmarshal(raw, &params); err != nil || len(params) < 1 {
		return "", fmt.Errorf("invalid authorize params")
	}
	worker, ok := params[0].(string)
	if !ok || worker == "" {
		return "", fmt.Errorf("invalid worker name")
	}
	return worker, nil
}

// shareSubmissionWire mirrors the tagged-union ShareSubmission JSON:
// {"job_id":..., "miner_id":..., "share_type": {"ComputationProof": {nonce, witness_commitment, computation_steps}} | {"ValidBlock": {nonce, proof}}}
type shareSubmissionWire struct {
	JobID     string          `json:"job_id"`
	MinerID   string          `json:"miner_id"`
	ShareType json.RawMessage `json:"share_type"`
}

type computationProofWire struct {
	ComputationProof struct {
		Nonce             uint64 `json:"nonce"`
		WitnessCommitment string `json:"witness_commitment"`
		ComputationSteps  uint64 `json:"computation_steps"`
	} `json:"ComputationProof"`
}

type validBlockWire struct {
	ValidBlock struct {
		Nonce uint64 `json:"nonce"`
		Proof string `json:"proof"`
	} `json:"ValidBlock"`
}

// parseSubmit decodes a mining.submit params payload into a
// validator.Submission. The nonce always comes from share_type.nonce — the
// reference source's submit handler hardcodes nonce to zero instead of
// extracting it from the submission, a bug this implementation does not
// reproduce.
func parseSubmit(raw json.RawMessage) (validator.Submission, error) {
	var wire shareSubmissionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return validator.Submission{}, fmt.Errorf("invalid submit params: %w", err)
	}
	if wire.JobID == "" || wire.MinerID == "" {
		return validator.Submission{}, fmt.Errorf("missing job_id or miner_id")
	}

	var cp computationProofWire
	if err := json.Unmarshal(wire.ShareType, &cp); err == nil && cp.ComputationProof.WitnessCommitment != "" {
		commitment, err := hex.DecodeString(cp.ComputationProof.WitnessCommitment)
		if err != nil || len(commitment) != 32 {
			return validator.Submission{}, fmt.Errorf("invalid witness_commitment")
		}
		var arr [32]byte
		copy(arr[:], commitment)
		return validator.Submission{
			JobID:             wire.JobID,
			MinerID:           wire.MinerID,
			Kind:              validator.ComputationProof,
			Nonce:             cp.ComputationProof.Nonce,
			WitnessCommitment: arr,
			ComputationSteps:  cp.ComputationProof.ComputationSteps,
		}, nil
	}

	var vb validBlockWire
	if err := json.Unmarshal(wire.ShareType, &vb); err == nil && vb.ValidBlock.Proof != "" {
		proof, err := hex.DecodeString(vb.ValidBlock.Proof)
		if err != nil {
			return validator.Submission{}, fmt.Errorf("invalid proof hex")
		}
		return validator.Submission{
			JobID:   wire.JobID,
			MinerID: wire.MinerID,
			Kind:    validator.ValidBlock,
			Nonce:   vb.ValidBlock.Nonce,
			Proof:   proof,
		}, nil
	}

	return validator.Submission{}, fmt.Errorf("unrecognized share_type")
}
