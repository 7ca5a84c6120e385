package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate 自动迁移所有表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Friendship{},
		&Category{},
		&Community{},
		&CommunityCategory{},
		&CommunityMember{},
		&CommunityMessage{},
		&Post{},
		&Comment{},
		&Like{},
		&DirectMessage{},
		&MessageRead{},
		&GroupChat{},
		&GroupChatMember{},
		&GroupMessage{},
		&Announcement{},
		&Event{},
		&EventRSVP{},
		&UserPhoto{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedCategories inserts every topic/subtopic pair once.
func SeedCategories(db *gorm.DB) error {
	var rows []Category
	for _, topic := range TopicOrder {
		for _, sub := range Topics[topic] {
			rows = append(rows, Category{Topic: topic, Subtopic: sub})
		}
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

var TopicOrder = []string{
	"Core Support",
	"Identity & Experience",
	"Interests & Hobbies",
	"Life Skills & Personal Growth",
	"Community & Belonging",
	"General Use",
}

var Topics = map[string][]string{
	"Core Support": {
		"Mental Health & Wellness",
		"Academic Support",
		"Social Skills & Communication",
		"Self-Advocacy",
		"Accessibility Resources",
	},
	"Identity & Experience": {
		"Autism Spectrum",
		"ADHD",
		"Dyslexia & Learning Differences",
		"Sensory Processing",
		"Co-occurring Conditions",
		"Late Diagnosis & Self-Discovery",
	},
	"Interests & Hobbies": {
		"Gaming & Game Design",
		"Creative Writing",
		"Art & Design",
		"Music & Sound",
		"STEM Topics",
		"Books & Literature",
		"Fandoms & Pop Culture",
		"Sports & Fitness",
		"Movies & TV Shows",
		"Cooking & Baking",
		"Travel & Adventure",
		"Photography & Videography",
		"Crafting & DIY Projects",
		"Gardening & Nature",
		"Fashion & Style",
		"Technology & Gadgets",
		"History & Culture",
		"Food & Drink",
	},
	"Life Skills & Personal Growth": {
		"Career Prep & Internships",
		"Time Management",
		"Study Skills",
		"Daily Routines",
		"Life Transitions",
		"Mindfulness",
		"Goal Setting",
		"Stress Management",
		"Healthy Relationships",
		"Self-Care & Self-Compassion",
		"Financial Literacy",
	},
	"Community & Belonging": {
		"Peer Mentorship",
		"Local Meetups",
		"LGBTQIA+",
		"Cultural Identity",
		"Neurodivergent Advocacy & Leadership",
		"Support Spaces",
	},
	"General Use": {
		"General Discussion",
		"Events & Announcements",
		"Questions & Advice",
		"Off-Topic / Casual Chat",
	},
}
