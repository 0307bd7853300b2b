package market

import "github.com/echopolis/market-engine/internal/model"

// DefaultBaseVolume is used for instruments that do not declare one.
const DefaultBaseVolume = 1_000_000

// DefaultCatalog returns the fixed instrument pool of a new engine.
// STAR-board style instruments (688xxx) trade in the wider ±20% band.
func DefaultCatalog() []model.Instrument {
	return []model.Instrument{
		// Finance: low volatility
		{Code: "600036", Name: "Pearl River Bank", Sector: model.SectorFinance, BasePrice: 35.20, Volatility: 0.015, Beta: 0.9, DividendYield: 0.045, PERatio: 6.1, BaseVolume: 4_500_000},
		{Code: "601318", Name: "Harbor Life Insurance", Sector: model.SectorFinance, BasePrice: 48.60, Volatility: 0.017, Beta: 1.0, DividendYield: 0.038, PERatio: 8.4, BaseVolume: 3_800_000},

		// Consumer
		{Code: "600519", Name: "Golden Spirit Distillery", Sector: model.SectorConsumer, BasePrice: 1680.00, Volatility: 0.018, Beta: 0.8, DividendYield: 0.017, PERatio: 28.5, BaseVolume: 300_000},
		{Code: "000858", Name: "Eastern Brewery", Sector: model.SectorConsumer, BasePrice: 152.30, Volatility: 0.020, Beta: 0.9, DividendYield: 0.021, PERatio: 22.0, BaseVolume: 1_200_000},

		// Healthcare
		{Code: "600276", Name: "Heng Pharmaceutical", Sector: model.SectorHealthcare, BasePrice: 44.80, Volatility: 0.020, Beta: 0.8, DividendYield: 0.009, PERatio: 55.0, BaseVolume: 2_100_000},

		// Energy
		{Code: "601857", Name: "Continental Petroleum", Sector: model.SectorEnergy, BasePrice: 7.90, Volatility: 0.016, Beta: 0.7, DividendYield: 0.052, PERatio: 9.3, BaseVolume: 12_000_000},

		// Real estate
		{Code: "000002", Name: "Lakeside Properties", Sector: model.SectorRealEstate, BasePrice: 9.60, Volatility: 0.022, Beta: 1.2, DividendYield: 0.030, PERatio: 11.5, BaseVolume: 9_000_000},

		// Industrial
		{Code: "600010", Name: "Huaxia Steel", Sector: model.SectorIndustrial, BasePrice: 2.15, Volatility: 0.025, Beta: 1.1, DividendYield: 0.012, PERatio: 35.0, BaseVolume: 25_000_000},
		{Code: "002594", Name: "Dragon Motors", Sector: model.SectorIndustrial, BasePrice: 245.00, Volatility: 0.028, Beta: 1.2, DividendYield: 0.004, PERatio: 41.0, BaseVolume: 900_000},

		// Technology: highest volatility
		{Code: "300750", Name: "Volt Battery Technology", Sector: model.SectorTechnology, BasePrice: 188.50, Volatility: 0.030, Beta: 1.3, DividendYield: 0.006, PERatio: 33.0, BaseVolume: 1_500_000},
		{Code: "688981", Name: "Silicon Bridge Semiconductor", Sector: model.SectorTechnology, BasePrice: 52.40, Volatility: 0.035, Beta: 1.5, PERatio: 78.0, BaseVolume: 3_000_000, HighBand: true},
		{Code: "688111", Name: "Cloudnine Software", Sector: model.SectorTechnology, BasePrice: 265.00, Volatility: 0.040, Beta: 1.4, PERatio: 95.0, BaseVolume: 600_000, HighBand: true},
	}
}
