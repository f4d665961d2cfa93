package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"launchscope/internal/chain/solana"
)

// decodeResult is printed by the decode command.
type decodeResult struct {
	Matched      bool                `json:"matched"`
	Instruction  *solana.Instruction `json:"instruction,omitempty"`
	Launch       bool                `json:"launch"`
	Mint         string              `json:"mint,omitempty"`
	BondingCurve string              `json:"bonding_curve,omitempty"`
	Creator      string              `json:"creator,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	accounts, _ := cmd.Flags().GetStringSlice("accounts")

	idl, err := solana.PumpFunIDL()
	if err != nil {
		return err
	}
	decoder, err := solana.NewDecoder(idl)
	if err != nil {
		return err
	}

	res, err := decodePayload(decoder, args[0], accounts)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

// decodePayload decodes base58 instruction data. An unknown instruction is a
// result with Matched=false, not an error.
func decodePayload(decoder *solana.Decoder, data string, accounts []string) (decodeResult, error) {
	raw, err := base58.Decode(strings.TrimSpace(data))
	if err != nil {
		return decodeResult{}, fmt.Errorf("decode base58 payload: %w", err)
	}
	inst, ok := decoder.Decode(raw)
	if !ok {
		return decodeResult{}, nil
	}
	res := decodeResult{Matched: true, Instruction: &inst}
	if len(accounts) == 0 {
		return res, nil
	}

	keys := make([]solanago.PublicKey, 0, len(accounts))
	for _, a := range accounts {
		pk, err := solanago.PublicKeyFromBase58(strings.TrimSpace(a))
		if err != nil {
			return decodeResult{}, fmt.Errorf("parse account %q: %w", a, err)
		}
		keys = append(keys, pk)
	}
	if la, ok := decoder.LaunchAccounts(inst, keys); ok {
		res.Launch = true
		res.Mint = la.Mint.String()
		res.BondingCurve = la.BondingCurve.String()
		res.Creator = la.Creator.String()
	}
	return res, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
