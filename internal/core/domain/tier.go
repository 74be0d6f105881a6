package domain

import "time"

// TierPolicy описывает одну волну обзвона.
type TierPolicy struct {
	Tier          int           `yaml:"tier" json:"tier"`
	Channel       Channel       `yaml:"channel" json:"channel"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	TopK          int           `yaml:"top_k" json:"topK"`
	RelaxLanguage bool          `yaml:"relax_language" json:"relaxLanguage"`
	RelaxSkills   bool          `yaml:"relax_skills" json:"relaxSkills"`
}

func DefaultTierPolicies() []TierPolicy {
	return []TierPolicy{
		{Tier: 1, Channel: ChannelSMS, Timeout: 10 * time.Minute, TopK: 5},
		{Tier: 2, Channel: ChannelVoice, Timeout: 10 * time.Minute, TopK: 5, RelaxLanguage: true},
	}
}
