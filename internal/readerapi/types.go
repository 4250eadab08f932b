package readerapi

// Book summarizes one uploaded book in a user's library.
type Book struct {
	BookID        string  `json:"bookId"`
	Title         string  `json:"title"`
	Author        string  `json:"author,omitempty"`
	TotalPages    int     `json:"totalPages"`
	TotalChunks   int     `json:"totalChunks"`
	TotalDuration float64 `json:"totalDuration"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// booksResponse is the body of GET /api/reader/{user_id}.
type booksResponse struct {
	UserID     string `json:"userId"`
	TotalBooks int    `json:"totalBooks"`
	Books      []Book `json:"books"`
}

// Chapter summarizes one page of a book.
type Chapter struct {
	Page          int     `json:"page"`
	TotalDuration float64 `json:"totalDuration"`
	ChunkCount    int     `json:"chunkCount"`
}

// chaptersResponse is the body of GET /api/reader/{user_id}/{book_title}.
type chaptersResponse struct {
	BookID   string    `json:"bookId"`
	Chapters []Chapter `json:"chapters"`
}

// chapterChunk is one chunk in a chapter payload.
type chapterChunk struct {
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	FullText string  `json:"fullText,omitempty"`
	Emotion  string  `json:"emotion,omitempty"`
	AudioURL string  `json:"audioUrl"`
	Duration float64 `json:"duration,omitempty"`
}

// chapterResponse is the body of GET /api/reader/{user_id}/{book_title}/{page}.
type chapterResponse struct {
	Page          int            `json:"page"`
	BookID        string         `json:"bookId"`
	TotalDuration float64        `json:"totalDuration"`
	Chunks        []chapterChunk `json:"chunks"`
}

// healthResponse is the body of GET /api/reader/health.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
