package config

type symbolDefault struct {
	Scale           float64
	ImbalanceVolume float64
}

// symbolDefaults holds the price bin and minimum imbalance volume that suit each market's tick size.
var symbolDefaults = map[string]symbolDefault{
	"BTCUSDT":  {Scale: 0.5, ImbalanceVolume: 5},
	"ETHUSDT":  {Scale: 0.1, ImbalanceVolume: 5},
	"SOLUSDT":  {Scale: 0.01, ImbalanceVolume: 10},
	"XRPUSDT":  {Scale: 0.0001, ImbalanceVolume: 50},
	"DOGEUSDT": {Scale: 0.00001, ImbalanceVolume: 100},
	"BNBUSDT":  {Scale: 0.05, ImbalanceVolume: 5},
	"AVAXUSDT": {Scale: 0.01, ImbalanceVolume: 10},
	"LINKUSDT": {Scale: 0.005, ImbalanceVolume: 10},
}
