package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotFound is returned when the ledger has no transaction for a signature
// at the requested confirmation level.
var ErrNotFound = errors.New("transaction not found")

// Blockhash is a recent blockhash and the last block height it is valid for.
// Consumed by collaborators building payments, not by the verifier itself.
type Blockhash struct {
	Hash                 solana.Hash `json:"hash"`
	LastValidBlockHeight uint64      `json:"lastValidBlockHeight"`
}

// Client fetches ledger state. Implementations must return ErrNotFound for
// absent transactions so callers can distinguish "no such payment" from
// transport failures.
type Client interface {
	GetTransaction(ctx context.Context, sig solana.Signature) (*Record, error)
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)
}

// RPCClient implements Client over Solana JSON-RPC.
type RPCClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewRPCClient creates a ledger client against the given RPC endpoint.
// An empty commitment defaults to confirmed.
func NewRPCClient(endpoint string, commitment rpc.CommitmentType) *RPCClient {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCClient{
		rpc:        rpc.New(endpoint),
		commitment: commitment,
	}
}

// GetTransaction fetches a transaction by signature at the client's
// commitment level and maps it into a Record.
func (c *RPCClient) GetTransaction(ctx context.Context, sig solana.Signature) (*Record, error) {
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if out == nil {
		return nil, ErrNotFound
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	return buildRecord(sig, out, tx), nil
}

// GetLatestBlockhash returns the most recent blockhash at the client's
// commitment level.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	return &Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func buildRecord(sig solana.Signature, out *rpc.GetTransactionResult, tx *solana.Transaction) *Record {
	rec := &Record{
		Signature: sig,
		Slot:      out.Slot,
	}
	if out.BlockTime != nil {
		rec.BlockTime = int64(*out.BlockTime)
	}
	if out.Meta != nil {
		if out.Meta.Err != nil {
			rec.Failed = true
			rec.ExecutionErr = fmt.Sprintf("%v", out.Meta.Err)
		}
		rec.LogMessages = out.Meta.LogMessages
		rec.PreTokenBalances = mapTokenBalances(out.Meta.PreTokenBalances)
		rec.PostTokenBalances = mapTokenBalances(out.Meta.PostTokenBalances)
	}
	rec.Envelope = buildEnvelope(tx)
	return rec
}

func buildEnvelope(tx *solana.Transaction) Envelope {
	msg := tx.Message
	raw := make([]Instruction, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		raw = append(raw, Instruction{
			ProgramIDIndex: ci.ProgramIDIndex,
			Data:           []byte(ci.Data),
		})
	}

	if msg.GetVersion() == solana.MessageVersionLegacy {
		return &LegacyEnvelope{
			Signatures:            tx.Signatures,
			NumRequiredSignatures: msg.Header.NumRequiredSignatures,
			AccountKeys:           msg.AccountKeys,
			Raw:                   raw,
		}
	}
	return &VersionedEnvelope{
		Signatures:            tx.Signatures,
		NumRequiredSignatures: msg.Header.NumRequiredSignatures,
		StaticAccountKeys:     msg.AccountKeys,
		Raw:                   raw,
		AddressTableCount:     len(msg.AddressTableLookups),
	}
}

func mapTokenBalances(in []rpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		if b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       amount,
		})
	}
	return out
}

var _ Client = (*RPCClient)(nil)
