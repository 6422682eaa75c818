package models

// TokenKind tags what the decoder managed to extract from the ID token.
type TokenKind string

const (
	TokenRawText        TokenKind = "raw_text"        // undecodable payload, kept verbatim
	TokenRegisterNumber TokenKind = "register_number" // a plausible register number
	TokenEmailEmbedded  TokenKind = "email_embedded"  // register number pulled out of an email local part
)

// DecodeStrategy identifies which cascade stage produced a decode.
type DecodeStrategy string

const (
	StrategyDirect     DecodeStrategy = "direct"
	StrategyEnhanced   DecodeStrategy = "enhanced"
	StrategyRegion     DecodeStrategy = "region"
	StrategyMultiScale DecodeStrategy = "multiscale"
	StrategyRotation   DecodeStrategy = "rotation"
	StrategyOCR        DecodeStrategy = "ocr"
)

// DecodedToken is the single tagged result type for the token decoder;
// downstream extraction switches on Kind exhaustively instead of sniffing
// loosely shaped payloads.
type DecodedToken struct {
	Kind     TokenKind      `json:"kind"`
	Value    string         `json:"value"`
	Strategy DecodeStrategy `json:"strategy"`
}
