package config

const (
	// Mainnet constants.
	MainnetBaseRPCURL      = "https://api.mainnet-beta.solana.com"
	MainnetBaseWSURL       = "wss://api.mainnet-beta.solana.com"
	MainnetEphemeralRPCURL = "https://mainnet.magicblock.app"
	MainnetEphemeralWSURL  = "wss://mainnet.magicblock.app"
	MainnetCanvasProgramID = "GYhQDKuESrasNZGyhMJhGYFtbzNijYhcrN9poSqCQVah"

	// Devnet constants.
	DevnetBaseRPCURL      = "https://api.devnet.solana.com"
	DevnetBaseWSURL       = "wss://api.devnet.solana.com"
	DevnetEphemeralRPCURL = "https://devnet.magicblock.app"
	DevnetEphemeralWSURL  = "wss://devnet.magicblock.app"
	DevnetCanvasProgramID = "C9xqH76NSm11pBS6maNnY163tWHT8Govww47uyEmSnoG"
)
