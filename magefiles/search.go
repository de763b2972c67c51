package main

// Search queries arXiv and Semantic Scholar for query.
func Search(query string) error {
	return runCLI("search", query)
}
