package registry

import "launchscope/internal/model"

// Seed returns the static known addresses for chain.
func Seed(chain model.Chain) []Entry {
	switch chain {
	case model.ChainEVM:
		return evmSeed
	case model.ChainSolana:
		return solanaSeed
	default:
		return nil
	}
}

// SeedAll returns the seed for every chain.
func SeedAll() []Entry {
	out := make([]Entry, 0, len(evmSeed)+len(solanaSeed))
	out = append(out, evmSeed...)
	return append(out, solanaSeed...)
}

var evmSeed = []Entry{
	{model.ChainEVM, "0x0000000000000000000000000000000000000000", "Null Address", model.CategoryBurn},
	{model.ChainEVM, "0x000000000000000000000000000000000000dEaD", "Dead Address", model.CategoryBurn},
	{model.ChainEVM, "0xdEAD000000000000000042069420694206942069", "Dead Address (alt)", model.CategoryBurn},
	{model.ChainEVM, "0x663A5C229c09b049E36dCc11a9B0d4a8Eb9db214", "UNCX Locker", model.CategoryLock},
	{model.ChainEVM, "0xE2fE530C047f2d85298b07D9333C05737f1435fB", "Team Finance Lock", model.CategoryLock},
	{model.ChainEVM, "0xDba68f07d1b7Ca219f78ae8582C213d975c25cAf", "UNCX Token Vesting", model.CategoryLock},
	{model.ChainEVM, "0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24", "Uniswap V2 Router", model.CategoryExchange},
	{model.ChainEVM, "0x2626664c2603336E57B271c5C0b26F421741e481", "Uniswap V3 SwapRouter02", model.CategoryExchange},
	{model.ChainEVM, "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", "Uniswap Universal Router", model.CategoryExchange},
	{model.ChainEVM, "0x6fF5693b99212Da76ad316178A184AB56D299b43", "Uniswap Universal Router (v4)", model.CategoryExchange},
	{model.ChainEVM, "0xcF77a3Ba9A5CA399B7c97c74d54e5b1Beb874E43", "Aerodrome Router", model.CategoryExchange},
	{model.ChainEVM, "0x1111111254EEB25477B68fb85Ed929f73A960582", "1inch Router", model.CategoryExchange},
	{model.ChainEVM, "0xDef1C0ded9bec7F1a1670819833240f027b25EfF", "0x Exchange Proxy", model.CategoryExchange},
	{model.ChainEVM, "0xF66DeA7b3e897cD44A5a231c61B6B4423d613259", "Virtuals Bonding", model.CategoryExchange},
}

var solanaSeed = []Entry{
	{model.ChainSolana, "1nc1nerator11111111111111111111111111111111", "Solana Incinerator", model.CategoryBurn},
	{model.ChainSolana, "11111111111111111111111111111111", "System Program", model.CategoryBurn},
	{model.ChainSolana, "strmRqUCoQUgGUan5YhzUZa6KqdzwX5L6FpUxfmKg5m", "Streamflow", model.CategoryLock},
	{model.ChainSolana, "LocpQgucEQHbqNABEYvBvwoxCPsSbG91A1QaQhQQqjn", "Jupiter Lock", model.CategoryLock},
	{model.ChainSolana, "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P", "Pump.fun", model.CategoryExchange},
	{model.ChainSolana, "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA", "PumpSwap AMM", model.CategoryExchange},
	{model.ChainSolana, "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", "Raydium AMM v4", model.CategoryExchange},
	{model.ChainSolana, "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1", "Raydium Authority", model.CategoryExchange},
	{model.ChainSolana, "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C", "Raydium CPMM", model.CategoryExchange},
	{model.ChainSolana, "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "Jupiter Aggregator v6", model.CategoryExchange},
	{model.ChainSolana, "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc", "Orca Whirlpools", model.CategoryExchange},
}
