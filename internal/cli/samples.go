package cli

import (
	"fmt"
	"strconv"

	"tracing-quiz-service/internal/domain"
)

// sampleBanks provides the built-in question banks; a postgres-backed loader replaces them in production.
func sampleBanks() map[domain.Category][]domain.Question {
	return map[domain.Category][]domain.Question{
		domain.CategoryCounting: countingBank(),
		domain.CategoryAnimals: {
			letterQuestion("animals/dog", "dog", "ཁྱི", "ཁ", "ཀ", "ག", "ང"),
			letterQuestion("animals/cat", "cat", "བྱི་ལི", "བ", "ཕ", "ད", "ཀ"),
			letterQuestion("animals/pig", "pig", "ཕག་པ", "ཕ", "བ", "ཚ", "ཨ"),
			letterQuestion("animals/yak", "yak", "གཡག", "ག", "ཁ", "ཀ", "ཧ"),
		},
		domain.CategoryFruits: {
			letterQuestion("fruits/apple", "apple", "ཀུ་ཤུ", "ཀ", "ཁ", "ག", "ང"),
			letterQuestion("fruits/orange", "orange", "ཚ་ལུ་མ", "ཚ", "ཕ", "བ", "ད"),
			letterQuestion("fruits/mango", "mango", "ཨམ", "ཨ", "ཧ", "ཀ", "ཁ"),
			letterQuestion("fruits/peach", "peach", "ཁམ་བུ", "ཁ", "ཀ", "ཚ", "ཕ"),
		},
	}
}

func countingBank() []domain.Question {
	questions := make([]domain.Question, 0, 10)
	for n := 0; n < 10; n++ {
		options := make([]string, 0, 4)
		for i := 0; i < 4; i++ {
			// rotate the correct count through the option slots
			options = append(options, strconv.Itoa((n+i-n%4+10)%10))
		}
		questions = append(questions, domain.Question{
			PromptPrimary:   fmt.Sprintf("How many stars can you count? (%d)", n+1),
			PromptSecondary: "སྐར་མ་ག་དེམ་ཅིག་ཡོདཔ་སྨོ?",
			ImageRef:        "counting/" + strconv.Itoa(n),
			Options:         options,
			CorrectAnswer:   strconv.Itoa(n),
		})
	}
	return questions
}

func letterQuestion(image, english, word, answer string, distractors ...string) domain.Question {
	options := append([]string{answer}, distractors[:3]...)
	return domain.Question{
		PromptPrimary:   fmt.Sprintf("Which letter does %q start with?", english),
		PromptSecondary: word + " གི་ཡིག་འབྲུ་དང་པ་ག་ཨིན?",
		ImageRef:        image,
		Options:         options,
		CorrectAnswer:   answer,
	}
}
