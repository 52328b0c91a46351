package mapurl

import (
	"testing"
)

func TestSearchURL(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{
			name:     "simple place",
			location: "Kyoto",
			want:     "https://www.google.com/maps/search/?api=1&query=Kyoto",
		},
		{
			name:     "place with comma and space",
			location: "Tokyo, Japan",
			want:     "https://www.google.com/maps/search/?api=1&query=Tokyo%2C+Japan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchURL(tt.location); got != tt.want {
				t.Errorf("SearchURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlaceFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "Pattern A: /maps/place/ path",
			url:  "https://www.google.com/maps/place/Fushimi+Inari+Taisha/@34.9671,135.7727,17z",
			want: "Fushimi Inari Taisha",
		},
		{
			name: "Pattern A: percent-encoded place",
			url:  "https://www.google.com/maps/place/Caf%C3%A9+de+Flore/",
			want: "Café de Flore",
		},
		{
			name: "Pattern B: query param ?q=",
			url:  "https://maps.google.com/?q=Osaka+Station",
			want: "Osaka Station",
		},
		{
			name: "Pattern B: query param ?query=",
			url:  "https://www.google.com/maps/search/?api=1&query=Nara Park",
			want: "Nara Park",
		},
		{
			name: "Pattern C: bare @lat,lng",
			url:  "https://www.google.com/maps/@35.696677,138.430228,15z",
			want: "35.696677,138.430228",
		},
		{
			name: "not a maps URL",
			url:  "https://example.com/maps/place/Nope",
			want: "",
		},
		{
			name: "plain text is not a URL",
			url:  "Tokyo, Japan",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlaceFromURL(tt.url); got != tt.want {
				t.Errorf("PlaceFromURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCoordinates(t *testing.T) {
	if !IsCoordinates("35.696677,138.430228") {
		t.Error("IsCoordinates() = false for a lat,lng pair")
	}
	if IsCoordinates("Tokyo, Japan") {
		t.Error("IsCoordinates() = true for a place name")
	}
}
