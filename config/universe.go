package config

// DefaultUniverse is the volatile small and mid cap watch list.
var DefaultUniverse = []string{
	// Small-cap tech / growth
	"PLTR", "SOFI", "HOOD", "AFRM", "UPST", "PATH", "DKNG", "RBLX",
	"U", "SNAP", "PINS", "ROKU", "SQ", "COIN", "MARA", "RIOT",

	// Biotech
	"MRNA", "BNTX", "CRSP", "NVAX", "SGEN", "EXAS", "VRTX", "REGN",

	// EV / clean energy
	"RIVN", "LCID", "NIO", "XPEV", "PLUG", "FCEL", "CHPT", "QS",

	// Meme / high volatility
	"GME", "AMC", "BBBY", "TLRY", "SNDL", "SPCE",

	// Mid-cap growth
	"CRWD", "DDOG", "NET", "ZS", "MDB", "SNOW", "TTD", "ENPH",

	// Volatile large caps
	"TSLA", "AMD", "NVDA", "META",
}
