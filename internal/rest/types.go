package rest

// Usuario is the backend user/customer record.
type Usuario struct {
	ID         string `json:"id"`
	Nombre     string `json:"nombre"`
	Apellido   string `json:"apellido"`
	Email      string `json:"email"`
	Telefono   string `json:"telefono"`
	Rol        string `json:"rol"`
	SucursalID int64  `json:"sucursal_id"`
}

// Sucursal is an affiliated business branch.
type Sucursal struct {
	ID          int64  `json:"id"`
	Nombre      string `json:"nombre"`
	Direccion   string `json:"direccion"`
	Telefono    string `json:"telefono"`
	CategoriaID int64  `json:"categoria_id"`
	Imagen      string `json:"imagen"`
}

// Tarjeta is a loyalty credential card.
type Tarjeta struct {
	ID             int64  `json:"id"`
	Numero         string `json:"numero"`
	Puntos         int64  `json:"puntos"`
	Activa         bool   `json:"activa"`
	SucursalID     int64  `json:"sucursal_id"`
	SucursalNombre string `json:"sucursal_nombre"`
}

// Provincia is a province used by the onboarding address form.
type Provincia struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// Localidad is a locality within a province.
type Localidad struct {
	ID          int64  `json:"id"`
	Nombre      string `json:"nombre"`
	ProvinciaID int64  `json:"provincia_id"`
}

// CategoriaProducto is a product category for the business catalog.
type CategoriaProducto struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// CrearTarjetaRequest is the payload for POST /tarjeta.
type CrearTarjetaRequest struct {
	SucursalID int64  `json:"sucursal_id"`
	Numero     string `json:"numero"`
}
