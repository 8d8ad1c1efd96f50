package model

// Stage1Result summarizes a company discovery run.
type Stage1Result struct {
	QueriesProcessed    int  `json:"queriesProcessed"`
	QueriesFailed       int  `json:"queriesFailed"`
	CompaniesFound      int  `json:"companiesFound"`
	DuplicatesSkipped   int  `json:"duplicatesSkipped"`
	MarketplaceFiltered int  `json:"marketplaceFiltered"`
	WithWebsite         int  `json:"withWebsite"`
	WithEmail           int  `json:"withEmail"`
	Partial             bool `json:"partial"`
}

// Stage2Result summarizes a website discovery run.
type Stage2Result struct {
	Total    int  `json:"total"`
	Found    int  `json:"found"`
	NotFound int  `json:"notFound"`
	Errors   int  `json:"errors"`
	// Retried counts companies given a second pass through the fallback
	// provider; RetryFound how many of them got a website from it.
	Retried    int  `json:"retried"`
	RetryFound int  `json:"retryFound"`
	Partial    bool `json:"partial"`
}

// Stage3Result summarizes a contact discovery run.
type Stage3Result struct {
	SitesProcessed int  `json:"sitesProcessed"`
	ContactsFound  int  `json:"contactsFound"`
	Errors         int  `json:"errors"`
	Retried        int  `json:"retried"`
	RetryFound     int  `json:"retryFound"`
	Partial        bool `json:"partial"`
}

// Stage4Result summarizes a validation run.
type Stage4Result struct {
	CompaniesAnalyzed int  `json:"companiesAnalyzed"`
	ValidatedCount    int  `json:"validatedCount"`
	RejectedCount     int  `json:"rejectedCount"`
	FallbackCount     int  `json:"fallbackCount"`
	Partial           bool `json:"partial"`
}

// StageCounts tallies a session's companies by stage.
type StageCounts map[Stage]int

// Total returns the sum over all stages.
func (c StageCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
