// Package settlement broadcasts encoded plans to the settlement
// contract's executeArbitrage entry point and reads back receipts.
package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/execution/app"
	"github.com/fd1az/arb-engine/business/execution/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/logger"
)

const tracerName = "execution.settlement"

// contractABI covers the single entry point the engine calls. The
// contract takes the flash loan, runs the steps, and repays in one
// transaction.
const contractABI = `[{
	"name": "executeArbitrage",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "asset", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "steps", "type": "bytes[]"}
	],
	"outputs": []
}]`

// Submitter signs and broadcasts settlement transactions.
type Submitter struct {
	client   *ethclient.Client
	contract common.Address
	parsed   abi.ABI

	key    *ecdsa.PrivateKey
	sender common.Address
	signer types.Signer

	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewSubmitter creates the submitter. privateKeyHex is the sender key
// without the 0x prefix.
func NewSubmitter(client *ethclient.Client, contract common.Address, privateKeyHex string, chainID uint64, log logger.LoggerInterface) (*Submitter, error) {
	if contract == (common.Address{}) {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("settlement: zero contract address"))
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("settlement: bad private key"))
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement ABI: %w", err)
	}

	return &Submitter{
		client:   client,
		contract: contract,
		parsed:   parsed,
		key:      key,
		sender:   crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Sender returns the broadcasting address.
func (s *Submitter) Sender() common.Address { return s.sender }

// Submit signs and broadcasts the plan. It returns the transaction
// hash; confirmation is the caller's business.
func (s *Submitter) Submit(ctx context.Context, plan *domain.Plan) (string, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Submit",
		trace.WithAttributes(
			attribute.String("opportunity_id", plan.OpportunityID),
			attribute.Int("steps", len(plan.Steps)),
		))
	defer span.End()

	borrowAsset := plan.Borrow.Asset()
	calldata, err := s.parsed.Pack("executeArbitrage",
		borrowAsset.ID().Address(), plan.Borrow.Raw(), plan.Steps)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeSubmissionFailed, "pack executeArbitrage")
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.sender)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeEthereumRPCError, "pending nonce")
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeEthereumRPCError, "suggest gas price")
	}

	tx, err := types.SignNewTx(s.key, s.signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &s.contract,
		Gas:      plan.GasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeSubmissionFailed, "sign settlement tx")
	}

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return "", apperror.Wrap(err, apperror.CodeSubmissionFailed, "broadcast settlement tx")
	}

	hash := tx.Hash().Hex()
	span.SetAttributes(attribute.String("tx_hash", hash))
	s.logger.Info(ctx, "settlement submitted",
		"tx", hash, "nonce", nonce, "gas_limit", plan.GasLimit)
	return hash, nil
}

// Receipt fetches the receipt, mapping a still-pending transaction to
// (nil, nil).
func (s *Submitter) Receipt(ctx context.Context, txHash string) (*app.TxReceipt, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "receipt for "+txHash)
	}

	return &app.TxReceipt{
		Status:      receipt.Status,
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}
