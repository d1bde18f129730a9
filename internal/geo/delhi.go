package geo

import (
	"github.com/paulmach/orb"

	"github.com/lox/floodwatch/internal/models"
)

// HighRiskZones are the historically worst waterlogging points: Minto Bridge,
// ITO, Dhaula Kuan and Najafgarh.
var HighRiskZones = []orb.Point{
	{77.2285, 28.6330},
	{77.2425, 28.6304},
	{77.1610, 28.5910},
	{76.9830, 28.6139},
}

// DelhiLocations is the built-in known-location table with the drainage
// capacity (mm/24h) each locality's network handles before it backs up.
func DelhiLocations() *LocationTable {
	return NewLocationTable(delhiLocations)
}

var delhiLocations = []models.KnownLocation{
	{Lat: 28.6330, Lng: 77.2285, Name: "Minto Bridge", DrainageCapacityMM: 25},
	{Lat: 28.6304, Lng: 77.2425, Name: "ITO Crossing", DrainageCapacityMM: 35},
	{Lat: 28.5910, Lng: 77.1610, Name: "Dhaula Kuan", DrainageCapacityMM: 45},
	{Lat: 28.6139, Lng: 76.9830, Name: "Najafgarh", DrainageCapacityMM: 25},
	{Lat: 28.6675, Lng: 77.2282, Name: "Kashmere Gate", DrainageCapacityMM: 40},
	{Lat: 28.5244, Lng: 77.2618, Name: "Okhla", DrainageCapacityMM: 30},
	{Lat: 28.6436, Lng: 77.1565, Name: "Shadipur", DrainageCapacityMM: 35},
	{Lat: 28.5355, Lng: 77.1420, Name: "Munirka", DrainageCapacityMM: 45},
	{Lat: 28.7041, Lng: 77.1025, Name: "Pitampura", DrainageCapacityMM: 55},
	{Lat: 28.5494, Lng: 77.2117, Name: "Green Park", DrainageCapacityMM: 60},
	{Lat: 28.6219, Lng: 77.0878, Name: "Janakpuri", DrainageCapacityMM: 55},
	{Lat: 28.5550, Lng: 77.2562, Name: "Kalkaji", DrainageCapacityMM: 45},
	{Lat: 28.5273, Lng: 77.2177, Name: "Saket", DrainageCapacityMM: 60},
	{Lat: 28.6406, Lng: 77.3060, Name: "Preet Vihar", DrainageCapacityMM: 50},
	{Lat: 28.6505, Lng: 77.1711, Name: "Pushta Road", DrainageCapacityMM: 20},
	{Lat: 28.6288, Lng: 77.2847, Name: "Laxmi Nagar", DrainageCapacityMM: 30},
	{Lat: 28.5700, Lng: 77.3200, Name: "Noida Sec-18 Area", DrainageCapacityMM: 40},
	{Lat: 28.4595, Lng: 77.0266, Name: "Gurgaon Cyber City Area", DrainageCapacityMM: 45},
	{Lat: 28.7000, Lng: 77.2800, Name: "Shahdara", DrainageCapacityMM: 30},
	{Lat: 28.6900, Lng: 77.1900, Name: "Model Town", DrainageCapacityMM: 55},
	{Lat: 28.6000, Lng: 77.2300, Name: "Lodhi Road", DrainageCapacityMM: 75},
	{Lat: 28.5800, Lng: 77.2300, Name: "Jangpura", DrainageCapacityMM: 50},
	{Lat: 28.5500, Lng: 77.2000, Name: "Hauz Khas", DrainageCapacityMM: 65},
	{Lat: 28.5200, Lng: 77.2300, Name: "Khanpur", DrainageCapacityMM: 35},
	{Lat: 28.4900, Lng: 77.3000, Name: "Badarpur", DrainageCapacityMM: 35},
	{Lat: 28.6400, Lng: 77.1200, Name: "Kirti Nagar", DrainageCapacityMM: 50},
	{Lat: 28.6700, Lng: 77.1200, Name: "Punjabi Bagh", DrainageCapacityMM: 55},
	{Lat: 28.7300, Lng: 77.1100, Name: "Rohini", DrainageCapacityMM: 55},
	{Lat: 28.6100, Lng: 77.0400, Name: "Dwarka", DrainageCapacityMM: 60},
	{Lat: 28.5900, Lng: 77.0700, Name: "Palam", DrainageCapacityMM: 40},
	{Lat: 28.6300, Lng: 77.3400, Name: "Vaishali", DrainageCapacityMM: 45},
	{Lat: 28.6500, Lng: 77.3700, Name: "Indirapuram", DrainageCapacityMM: 45},
	{Lat: 28.7500, Lng: 77.2000, Name: "Burari", DrainageCapacityMM: 25},
	{Lat: 28.6600, Lng: 77.2100, Name: "Civil Lines", DrainageCapacityMM: 65},
	{Lat: 28.6400, Lng: 77.2100, Name: "Paharganj", DrainageCapacityMM: 30},
	{Lat: 28.6200, Lng: 77.2000, Name: "Connaught Place", DrainageCapacityMM: 80},
	{Lat: 28.5900, Lng: 77.1900, Name: "Chanakyapuri", DrainageCapacityMM: 85},
	{Lat: 28.5700, Lng: 77.1700, Name: "RK Puram", DrainageCapacityMM: 60},
	{Lat: 28.5400, Lng: 77.1600, Name: "Vasant Vihar", DrainageCapacityMM: 70},
	{Lat: 28.5300, Lng: 77.1200, Name: "Mahipalpur", DrainageCapacityMM: 35},
	{Lat: 28.6800, Lng: 77.0600, Name: "Nangloi", DrainageCapacityMM: 30},
	{Lat: 28.6600, Lng: 77.0300, Name: "Peeragarhi", DrainageCapacityMM: 35},
	{Lat: 28.6200, Lng: 77.1000, Name: "Mayapuri", DrainageCapacityMM: 40},
	{Lat: 28.4800, Lng: 77.1800, Name: "Chattarpur", DrainageCapacityMM: 35},
}
