package ingest

import (
	"context"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// RPCClient is the slice of the Solana RPC surface the backfill engine
// needs. Both the base layer and the ephemeral rollup expose it.
type RPCClient interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error)
}

// LogSubscription is one established program-log subscription.
type LogSubscription interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

// LogStream establishes program-log subscriptions. The websocket client
// satisfies it through WSLogStream; tests substitute their own.
type LogStream interface {
	SubscribeProgramLogs(ctx context.Context) (LogSubscription, error)
}

// WSLogStream subscribes to transaction logs mentioning the program over a
// solana websocket connection.
type WSLogStream struct {
	client     *ws.Client
	program    solana.PublicKey
	commitment solanarpc.CommitmentType
}

func NewWSLogStream(client *ws.Client, program solana.PublicKey, commitment solanarpc.CommitmentType) *WSLogStream {
	return &WSLogStream{
		client:     client,
		program:    program,
		commitment: commitment,
	}
}

func (s *WSLogStream) SubscribeProgramLogs(context.Context) (LogSubscription, error) {
	return s.client.LogsSubscribeMentions(s.program, s.commitment)
}
