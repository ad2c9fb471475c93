package dto

import "github.com/vibast-solutions/ms-go-accounts/app/entity"

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type LoginResult struct {
	User         *entity.User
	AccessToken  string
	RefreshToken string
}
