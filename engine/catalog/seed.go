package catalog

import (
	"context"
	"fmt"

	"github.com/herbid/herbid/engine/domain"
)

// SeedHerbs is the starter catalog written by Seed. None carry embeddings;
// those are added by importing reference images.
var SeedHerbs = []domain.HerbRecord{
	{
		CommonName:     "Tulsi (Holy Basil)",
		ScientificName: "Ocimum tenuiflorum",
		Uses:           "Medical Uses: 1) Respiratory Health - Treats asthma, bronchitis, cough, and cold. Tulsi tea helps clear respiratory passages. 2) Fever Reduction - Acts as a natural antipyretic to reduce fever. 3) Stress and Anxiety - Adaptogenic properties help manage stress and improve mental clarity. 4) Immune Booster - Enhances immunity and helps fight infections. 5) Anti-inflammatory - Reduces inflammation in the body. 6) Antioxidant - Rich in antioxidants that protect against free radicals. 7) Digestive Health - Aids digestion and treats stomach disorders. 8) Skin Care - Applied topically for skin infections and acne. Note: Consult a healthcare professional before using for medical purposes.",
		Description:    "A sacred plant in Hinduism, known for its medicinal properties.",
	},
	{
		CommonName:     "Neem",
		ScientificName: "Azadirachta indica",
		Uses:           "Medical Uses: 1) Skin Conditions - Treats acne, eczema, psoriasis, and fungal infections. Neem oil and paste are applied topically for wound healing. 2) Diabetes Management - Helps lower blood sugar levels. Neem leaf extract is used in traditional medicine. 3) Dental Care - Neem twigs are used as natural toothbrushes. Neem-based toothpaste helps prevent gum disease and cavities. 4) Immune System - Boosts immunity and has antiviral properties. 5) Digestive Health - Treats stomach ulcers and improves digestion. 6) Anti-inflammatory - Reduces inflammation and pain. 7) Antiparasitic - Effective against intestinal worms. 8) Blood Purification - Detoxifies blood and improves overall health. Note: Consult a healthcare professional before using for medical purposes.",
		Description:    "A versatile medicinal tree native to India, known as the 'village pharmacy' for its extensive therapeutic properties.",
	},
	{
		CommonName:     "Aloe Vera",
		ScientificName: "Aloe barbadensis",
		Uses:           "Medical Uses: 1) Skin Healing - Treats burns, wounds, cuts, and sunburns. Aloe gel promotes faster healing and reduces scarring. 2) Skin Conditions - Helps with acne, eczema, psoriasis, and dry skin. Provides natural moisturization. 3) Digestive Health - Aloe juice aids digestion, treats constipation, and soothes stomach ulcers. 4) Oral Health - Reduces plaque and treats gum inflammation when used as mouthwash. 5) Antioxidant - Contains vitamins and antioxidants that support overall health. 6) Wound Care - Applied topically to prevent infection and accelerate healing. 7) Anti-inflammatory - Reduces inflammation and pain. Note: Consult a healthcare professional before using for medical purposes.",
		Description:    "A succulent plant known for its gel's medicinal properties.",
	},
	{
		CommonName:     "Turmeric",
		ScientificName: "Curcuma longa",
		Uses:           "Medical Uses: 1) Anti-inflammatory - Reduces inflammation in conditions like arthritis, joint pain, and muscle soreness. Curcumin is the active compound. 2) Antioxidant - Protects cells from damage and supports overall health. 3) Digestive Health - Improves digestion, treats indigestion, and helps with bloating. 4) Wound Healing - Applied topically to heal wounds and prevent infection. 5) Skin Health - Treats acne, eczema, and improves skin complexion. 6) Brain Health - May improve memory and reduce risk of neurodegenerative diseases. 7) Heart Health - Supports cardiovascular health and may lower cholesterol. 8) Immune Support - Boosts immunity and helps fight infections. Note: Consult a healthcare professional before using for medical purposes.",
		Description:    "A spice with powerful medicinal properties, containing curcumin.",
	},
	{
		CommonName:     "Ginger",
		ScientificName: "Zingiber officinale",
		Uses:           "Medical Uses: 1) Nausea and Vomiting - Effective for motion sickness, morning sickness, and post-surgery nausea. Ginger tea is commonly used. 2) Digestive Health - Relieves indigestion, bloating, and stomach discomfort. Stimulates digestion. 3) Anti-inflammatory - Reduces inflammation and pain, especially in arthritis and muscle soreness. 4) Cold and Flu - Helps treat cold symptoms, sore throat, and congestion. Warming properties. 5) Menstrual Pain - Reduces menstrual cramps and discomfort. 6) Blood Circulation - Improves blood flow and may lower blood pressure. 7) Antioxidant - Contains antioxidants that protect against oxidative stress. 8) Respiratory Health - Helps with cough and respiratory congestion. Note: Consult a healthcare professional before using for medical purposes.",
		Description:    "A rhizome used both as spice and medicine.",
	},
	{
		CommonName:     "Mint",
		ScientificName: "Mentha",
		Uses:           "Used for treating digestive issues, respiratory problems, and as a flavoring agent. Has cooling and soothing properties.",
		Description:    "A refreshing herb with multiple uses.",
	},
	{
		CommonName:     "Coriander",
		ScientificName: "Coriandrum sativum",
		Uses:           "Used for treating digestive issues, inflammation, and as a flavoring agent. Rich in antioxidants.",
		Description:    "An aromatic herb used in cooking and medicine.",
	},
	{
		CommonName:     "Fenugreek",
		ScientificName: "Trigonella foenum-graecum",
		Uses:           "Used for treating diabetes, digestive issues, and increasing milk production in nursing mothers. Rich in fiber and protein.",
		Description:    "A herb with seeds used in cooking and medicine.",
	},
	{
		CommonName:     "Cumin",
		ScientificName: "Cuminum cyminum",
		Uses:           "Used for treating digestive issues, improving immunity, and as a spice. Has antioxidant properties.",
		Description:    "A spice with medicinal properties.",
	},
	{
		CommonName:     "Cardamom",
		ScientificName: "Elettaria cardamomum",
		Uses:           "Used for treating digestive issues, bad breath, and as a flavoring agent. Has antioxidant and anti-inflammatory properties.",
		Description:    "A spice known as the queen of spices.",
	},
}

// Seed writes SeedHerbs into an empty catalog. It returns the number of
// records written, which is zero when the catalog already holds data.
func Seed(ctx context.Context, w Writer) (int, error) {
	n, err := w.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for i, h := range SeedHerbs {
		if err := w.Upsert(ctx, h); err != nil {
			return i, fmt.Errorf("catalog: seed %s: %w", h.CommonName, err)
		}
	}
	return len(SeedHerbs), nil
}
