package classify

// DefaultEntries returns a built-in dictionary of companies and institutions that come up
// in retail investing forums. It is a starting point; load a file for anything serious.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "Apple", Aliases: []string{"AAPL"}},
		{Name: "Tesla", Aliases: []string{"TSLA"}},
		{Name: "Amazon", Aliases: []string{"AMZN", "Amazon.com"}},
		{Name: "Microsoft", Aliases: []string{"MSFT"}},
		{Name: "Alphabet", Aliases: []string{"Google", "GOOG", "GOOGL"}},
		{Name: "Meta", Aliases: []string{"Meta Platforms", "Facebook", "FB"}},
		{Name: "Nvidia", Aliases: []string{"NVIDIA", "NVDA"}},
		{Name: "AMD", Aliases: []string{"Advanced Micro Devices"}},
		{Name: "Intel", Aliases: []string{"INTC"}},
		{Name: "Netflix", Aliases: []string{"NFLX"}},
		{Name: "GameStop", Aliases: []string{"GME", "Gamestop"}},
		{Name: "AMC", Aliases: []string{"AMC Entertainment"}},
		{Name: "BlackBerry", Aliases: []string{"BB"}},
		{Name: "Nokia"},
		{Name: "Palantir", Aliases: []string{"PLTR"}},
		{Name: "Boeing"},
		{Name: "Ford"},
		{Name: "General Motors", Aliases: []string{"GM"}},
		{Name: "Disney"},
		{Name: "Walmart"},
		{Name: "Costco"},
		{Name: "Target"},
		{Name: "Coinbase"},
		{Name: "Robinhood", Aliases: []string{"HOOD"}},
		{Name: "Citadel"},
		{Name: "Goldman Sachs"},
		{Name: "JPMorgan", Aliases: []string{"JP Morgan", "JPMorgan Chase"}},
		{Name: "Morgan Stanley"},
		{Name: "Bank of America", Aliases: []string{"BofA"}},
		{Name: "Wells Fargo"},
		{Name: "Berkshire Hathaway", Aliases: []string{"Berkshire"}},
		{Name: "SoFi"},
		{Name: "Rivian"},
		{Name: "Lucid"},
		{Name: "Nio", Aliases: []string{"NIO"}},
		{Name: "Alibaba", Aliases: []string{"BABA"}},
		{Name: "Tencent"},
		{Name: "Sony"},
		{Name: "Samsung"},
		{Name: "TSMC", Aliases: []string{"Taiwan Semiconductor"}},
		{Name: "Qualcomm"},
		{Name: "Broadcom"},
		{Name: "Oracle"},
		{Name: "IBM"},
		{Name: "Salesforce"},
		{Name: "Adobe"},
		{Name: "PayPal"},
		{Name: "Visa"},
		{Name: "Mastercard"},
		{Name: "Uber"},
		{Name: "Lyft"},
		{Name: "Airbnb"},
		{Name: "Spotify"},
		{Name: "Snap", Aliases: []string{"Snapchat"}},
		{Name: "Twitter"},
		{Name: "Pfizer"},
		{Name: "Moderna"},
		{Name: "Johnson & Johnson"},
		{Name: "ExxonMobil", Aliases: []string{"Exxon"}},
		{Name: "Chevron"},
		{Name: "Coca-Cola"},
		{Name: "PepsiCo", Aliases: []string{"Pepsi"}},
		{Name: "Starbucks"},
		{Name: "Reddit"},
		{Name: "OpenAI"},
		{Name: "Federal Reserve", Aliases: []string{"Fed"}},
		{Name: "SEC"},
		{Name: "NYSE"},
		{Name: "Nasdaq", Aliases: []string{"NASDAQ"}},
	}
}
