package txbuilder

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/solana"
)

var (
	systemProgram        = solanago.MustPublicKeyFromBase58(solana.SystemProgramID)
	tokenProgram         = solanago.MustPublicKeyFromBase58(solana.TokenProgramID)
	ataProgram           = solanago.MustPublicKeyFromBase58(solana.AssociatedTokenProgramID)
	computeBudgetProgram = solanago.MustPublicKeyFromBase58(solana.ComputeBudgetProgramID)
)

func pk(address string) (solanago.PublicKey, error) {
	key, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("pubkey %q: %w", address, err)
	}
	return key, nil
}

// ata derives the associated token account for owner and mint.
func ata(owner, mint string) (solanago.PublicKey, error) {
	addr, err := solana.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return solanago.PublicKey{}, err
	}
	return pk(addr)
}

// createATAInstruction creates the associated token account if it does
// not exist yet. Idempotent on chain; safe to prepend unconditionally.
func createATAInstruction(payer, owner, account, mint solanago.PublicKey) solanago.Instruction {
	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(payer, true, true),
		solanago.NewAccountMeta(account, true, false),
		solanago.NewAccountMeta(owner, false, false),
		solanago.NewAccountMeta(mint, false, false),
		solanago.NewAccountMeta(systemProgram, false, false),
		solanago.NewAccountMeta(tokenProgram, false, false),
	}
	return solanago.NewInstruction(ataProgram, accounts, codec.EncodeCreateIdempotent())
}

// closeAccountInstruction closes a token account and returns its rent
// lamports to the owner.
func closeAccountInstruction(account, owner solanago.PublicKey) solanago.Instruction {
	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(account, true, false),
		solanago.NewAccountMeta(owner, true, false),
		solanago.NewAccountMeta(owner, false, true),
	}
	return solanago.NewInstruction(tokenProgram, accounts, codec.EncodeCloseAccount())
}

// transferInstruction moves lamports between system accounts.
func transferInstruction(from, to solanago.PublicKey, lamports uint64) solanago.Instruction {
	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(from, true, true),
		solanago.NewAccountMeta(to, true, false),
	}
	return solanago.NewInstruction(systemProgram, accounts, codec.EncodeSystemTransfer(lamports))
}

// syncNativeInstruction reconciles a wrapped-SOL account after a
// direct lamport transfer into it.
func syncNativeInstruction(account solanago.PublicKey) solanago.Instruction {
	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(account, true, false),
	}
	return solanago.NewInstruction(tokenProgram, accounts, codec.EncodeSyncNative())
}

// assembleAndSign fetches a fresh blockhash, assembles the
// instructions into a transaction paid by the wallet, and signs it.
func assembleAndSign(ctx context.Context, rpc solana.RPCClient, wallet *Wallet, instrs []solanago.Instruction) (*solanago.Transaction, string, error) {
	bh, err := rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, "", fmt.Errorf("blockhash %q: %w", bh.Blockhash, err)
	}

	tx, err := solanago.NewTransaction(instrs, hash, solanago.TransactionPayer(wallet.owner()))
	if err != nil {
		return nil, "", fmt.Errorf("assemble transaction: %w", err)
	}

	b64, err := wallet.signAndEncode(tx)
	if err != nil {
		return nil, "", err
	}
	return tx, b64, nil
}
