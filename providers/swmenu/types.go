package swmenu

import "encoding/xml"

// speiseplan ist das Wurzelelement des max-manager-XML-Feeds.
type speiseplan struct {
	XMLName    xml.Name `xml:"speiseplan"`
	LocationID int      `xml:"locationId,attr"`
	Days       []day    `xml:"tag"`
}

type day struct {
	Timestamp int64  `xml:"timestamp,attr"`
	Items     []item `xml:"item"`
}

type item struct {
	Category      string  `xml:"category"`
	Title         *string `xml:"title"`
	Description   string  `xml:"description"`
	Beilagen      string  `xml:"beilagen"`
	Preis1        string  `xml:"preis1"`
	Preis2        string  `xml:"preis2"`
	Preis3        string  `xml:"preis3"`
	Einheit       string  `xml:"einheit"`
	Piktogramme   string  `xml:"piktogramme"`
	Kj            string  `xml:"kj"`
	Kcal          string  `xml:"kcal"`
	Fett          string  `xml:"fett"`
	Gesfett       string  `xml:"gesfett"`
	Kh            string  `xml:"kh"`
	Zucker        string  `xml:"zucker"`
	Ballaststoffe string  `xml:"ballaststoffe"`
	Eiweiss       string  `xml:"eiweiss"`
	Salz          string  `xml:"salz"`
	Foto          string  `xml:"foto"`
}
