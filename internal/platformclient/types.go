package platformclient

// Wire-format types for the external video platform's REST surface
// (spec.md §6), kept minimal to what list_channel_videos / list_video_comments
// / post_reply actually read.

type channelsResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosStatisticsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					TextDisplay        string `json:"textDisplay"`
					AuthorDisplayName  string `json:"authorDisplayName"`
					PublishedAt        string `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

type postCommentRequest struct {
	Snippet postCommentSnippet `json:"snippet"`
}

type postCommentSnippet struct {
	ParentID     string `json:"parentId"`
	TextOriginal string `json:"textOriginal"`
}

type postCommentResponse struct {
	ID      string `json:"id"`
	Snippet struct {
		TextOriginal string `json:"textOriginal"`
	} `json:"snippet"`
}
