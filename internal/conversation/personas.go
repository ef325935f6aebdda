package conversation

import "github.com/ashureev/career-advisor/internal/domain"

var titles = map[domain.ConversationType]string{
	domain.TypeResume:        "Resume Review",
	domain.TypeInterviewPrep: "Interview Preparation",
	domain.TypeCoverLetter:   "Cover Letter Assistant",
	domain.TypeJobSearch:     "Job Search Strategy",
	domain.TypeLinkedIn:      "LinkedIn Optimization",
	domain.TypeAssessment:    "Skills Assessment",
	domain.TypeGeneral:       "Career Advice",
}

var greetings = map[domain.ConversationType]string{
	domain.TypeResume: "Hi! I'm your resume advisor. Paste your resume or upload it as a file, " +
		"and tell me the kind of role you're aiming for. I'll point out what works, what's missing, " +
		"and how to make your experience stand out.",
	domain.TypeInterviewPrep: "Welcome to interview preparation. Tell me the role and company you're " +
		"interviewing with and I'll run you through likely questions, then give feedback on your answers.",
	domain.TypeCoverLetter: "Let's write a cover letter. Share the job description and a few highlights " +
		"from your background, and I'll draft a letter tailored to the position.",
	domain.TypeJobSearch: "Let's plan your job search. What kind of role, industry and location are you " +
		"targeting? I'll help you build a strategy and find where to focus your time.",
	domain.TypeLinkedIn: "Ready to improve your LinkedIn profile? Paste your headline and About section " +
		"and I'll suggest changes that help recruiters find you.",
	domain.TypeAssessment: "This is your skills assessment space. Tell me which skills you want to " +
		"evaluate and I'll help you understand where you stand and what to learn next.",
	domain.TypeGeneral: "Hello! I'm your AI career advisor. Ask me anything about your career: " +
		"changing roles, negotiating an offer, growing your skills or planning your next step.",
}

// Title returns the display title for conversations of type t.
func Title(t domain.ConversationType) string {
	if title, ok := titles[t]; ok {
		return title
	}
	return titles[domain.TypeGeneral]
}

// Greeting returns the seed assistant message for conversations of type t.
func Greeting(t domain.ConversationType) string {
	if g, ok := greetings[t]; ok {
		return g
	}
	return greetings[domain.TypeGeneral]
}
